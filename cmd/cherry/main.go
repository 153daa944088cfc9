// Command cherry is the toolchain entry point: assemble Cherry assembly to
// bytecode, run or step a bytecode file, and inspect the ISA table the
// assembler and VM both load from.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"cherry/internal/asm"
	"cherry/internal/config"
	"cherry/internal/debugger"
	"cherry/internal/isa"
	"cherry/internal/vm"
)

func main() {
	app := cli.NewApp()
	app.Name = "cherry"
	app.Usage = "assembler and virtual machine for the Cherry instruction set"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Commands = []cli.Command{
		asmCommand,
		runCommand,
		debugCommand,
		dumpCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var asmCommand = cli.Command{
	Name:      "asm",
	Usage:     "assemble a .casm source file to bytecode",
	ArgsUsage: "source dest",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "string, s", Usage: "emit a hex-listing file instead of raw bytecode"},
		cli.BoolFlag{Name: "force, f", Usage: "overwrite dest if it already exists"},
	},
	Action: func(c *cli.Context) error {
		args := c.Args()
		if len(args) < 2 {
			return cli.NewExitError("usage: cherry asm <source> <dest>", 1)
		}
		source, dest := args[0], args[1]

		data, err := os.ReadFile(source) // #nosec G304 -- user-supplied source path
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("reading %s: %v", source, err), 1)
		}

		a := asm.NewAssembler(isa.DefaultTable())
		opts := asm.Options{StringMode: c.Bool("string"), Overwrite: c.Bool("force")}
		if err := a.Assemble(string(data), dest, opts); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	},
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "load and execute a bytecode file",
	ArgsUsage: "bytecode",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "load-addr", Value: -1, Usage: "override the configured start address (initial IP); the program is always loaded at address 0"},
	},
	Action: func(c *cli.Context) error {
		args := c.Args()
		if len(args) < 1 {
			return cli.NewExitError("usage: cherry run <bytecode>", 1)
		}

		cfg, err := config.Load()
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		loadAddr := cfg.Assembler.LoadAddress
		if c.Int("load-addr") >= 0 {
			loadAddr = uint16(c.Int("load-addr"))
		}

		program, err := os.ReadFile(args[0]) // #nosec G304 -- user-supplied bytecode path
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("reading %s: %v", args[0], err), 1)
		}

		m := vm.NewMachine(isa.DefaultTable())
		if err := m.Load(program, loadAddr); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		if err := vm.RunBounded(m, cfg.VM.MaxOperations); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("halted after %d operation(s)\n", m.OperationCounter)
		return nil
	},
}

var debugCommand = cli.Command{
	Name:      "debug",
	Usage:     "load a bytecode file and step it interactively",
	ArgsUsage: "bytecode",
	Action: func(c *cli.Context) error {
		args := c.Args()
		if len(args) < 1 {
			return cli.NewExitError("usage: cherry debug <bytecode>", 1)
		}

		cfg, err := config.Load()
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		program, err := os.ReadFile(args[0]) // #nosec G304 -- user-supplied bytecode path
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("reading %s: %v", args[0], err), 1)
		}

		m := vm.NewMachine(isa.DefaultTable())
		if err := m.Load(program, cfg.Assembler.LoadAddress); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		if err := debugger.Run(m, cfg); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	},
}

var dumpCommand = cli.Command{
	Name:  "dump",
	Usage: "print the ISA opcode and register table",
	Action: func(c *cli.Context) error {
		fmt.Print(isa.DefaultTable().Dump())
		return nil
	},
}
