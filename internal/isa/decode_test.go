package isa

import "testing"

func pad(b ...byte) []byte {
	window := make([]byte, 16)
	copy(window, b)
	return window
}

func TestDecodeInstructionLengths(t *testing.T) {
	cases := []struct {
		name string
		window []byte
		want int
	}{
		{
			name: "MOV reg,reg byte",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyMOV, FormOpAdd, 1)
				return pad(op, OpAdd{Mode: ModeRegReg, Primary: 0, Secondary: 1}.Encode())
			}(),
			want: 2,
		},
		{
			name: "MOV literal->register byte",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyMOV, FormOpAdd, 1)
				return pad(op, OpAdd{Mode: ModeSpecial, Primary: SpecialLiteral, Secondary: 0}.Encode(), 0x2A)
			}(),
			want: 3,
		},
		{
			name: "MOV literal->memory word",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyMOV, FormImmediateToMemory, 4)
				return pad(op, 0x00, 0x10, 0x01, 0x00, 0x00, 0x00)
			}(),
			want: 7,
		},
		{
			name: "MOV register->memory",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyMOV, FormRegisterToMemory, 1)
				return pad(op, OpAdd{Mode: ModeRegReg, Primary: 0, Secondary: 0}.Encode(), 0x00, 0x10)
			}(),
			want: 4,
		},
		{
			name: "JMP",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyJMP, FormOpAdd, 2)
				return pad(op, 0x00, 0x10)
			}(),
			want: 3,
		},
		{
			name: "JREL",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyJREL, FormOpAdd, 1)
				return pad(op, 0xFE)
			}(),
			want: 2,
		},
		{
			name: "HLT",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyHLT, FormOpAdd, 1)
				return pad(op)
			}(),
			want: 1,
		},
		{
			name: "RET",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyRET, FormOpAdd, 2)
				return pad(op)
			}(),
			want: 1,
		},
		{
			name: "CALL to label/address",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyCALL, FormOpAdd, 2)
				return pad(op, OpAdd{Mode: ModeSpecial, Primary: SpecialAddress, Secondary: 0}.Encode(), 0x00, 0x02)
			}(),
			want: 4,
		},
		{
			name: "conditional prefix before MOV reg,reg",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyMOV, FormOpAdd, 1)
				return pad(EncodeConditionOpcode(CondZ), op, OpAdd{Mode: ModeRegReg, Primary: 0, Secondary: 1}.Encode())
			}(),
			want: 3,
		},
		{
			name: "PUSH literal word",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyPUSH, FormImmediateToOpAdd, 4)
				return pad(op, 1, 0, 0, 0)
			}(),
			want: 5,
		},
		{
			name: "BBIT word",
			window: func() []byte {
				op, _ := EncodeOpcode(FamilyBBIT, FormOpAdd, 4)
				return pad(op, OpAdd{Mode: ModeRegReg, Primary: 0, Secondary: 0}.Encode(), 0x05)
			}(),
			want: 3,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in, err := DecodeInstruction(c.window)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if in.Length != c.want {
				t.Fatalf("expected length %d, got %d", c.want, in.Length)
			}
		})
	}
}

func TestDecodeInstructionRecognizesConditionalPrefix(t *testing.T) {
	op, _ := EncodeOpcode(FamilyHLT, FormOpAdd, 1)
	window := pad(EncodeConditionOpcode(CondGTE), op)
	in, err := DecodeInstruction(window)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !in.HasCondition || in.Condition != CondGTE {
		t.Fatalf("expected conditional prefix CondGTE, got %+v", in)
	}
	if in.Opcode.Family != FamilyHLT {
		t.Fatalf("expected underlying family HLT, got %v", in.Opcode.Family)
	}
	if in.Length != 2 {
		t.Fatalf("expected length 2 (prefix + opcode), got %d", in.Length)
	}
}
