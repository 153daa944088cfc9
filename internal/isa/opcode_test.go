package isa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		family Family
		form   Form
		width  int
	}{
		{"mov byte opadd", FamilyMOV, FormOpAdd, 1},
		{"mov word opadd", FamilyMOV, FormOpAdd, 4},
		{"add byte imm->opadd", FamilyADD, FormImmediateToOpAdd, 1},
		{"cmp word imm->mem", FamilyCMP, FormImmediateToMemory, 4},
		{"xor byte reg->mem", FamilyXOR, FormRegisterToMemory, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeOpcode(tc.family, tc.form, tc.width)
			require.NoError(t, err)

			decoded, err := DecodeOpcode(b)
			require.NoError(t, err)
			require.False(t, decoded.IsCondition)
			require.Equal(t, tc.family, decoded.Family)
			require.Equal(t, tc.form, decoded.Form)
			require.Equal(t, tc.width, decoded.Width)
		})
	}
}

func TestConditionOpcodesDoNotCollideWithFamilies(t *testing.T) {
	seen := make(map[byte]string)
	for _, fi := range Families {
		for _, form := range fi.Forms {
			for _, w := range []int{1, 4} {
				b, err := EncodeOpcode(fi.Family, form, w)
				require.NoError(t, err)
				if prev, ok := seen[b]; ok {
					t.Fatalf("opcode byte 0x%02X used by both %s and %s", b, prev, fi.Mnemonic)
				}
				seen[b] = fi.Mnemonic
			}
		}
	}
	for i := 0; i < 8; i++ {
		b := EncodeConditionOpcode(Condition(i))
		if prev, ok := seen[b]; ok {
			t.Fatalf("condition opcode byte 0x%02X collides with family %s", b, prev)
		}
	}
}

func TestConditionRoundTrip(t *testing.T) {
	for i := 0; i < 8; i++ {
		c := Condition(i)
		b := EncodeConditionOpcode(c)
		decoded, err := DecodeOpcode(b)
		require.NoError(t, err)
		require.True(t, decoded.IsCondition)
		require.Equal(t, c, decoded.Condition)
	}
}

func TestOpAddRoundTrip(t *testing.T) {
	cases := []OpAdd{
		{Mode: ModeRegReg, Primary: 3, Secondary: 1},
		{Mode: ModeIndirectPrimary, Primary: 0, Secondary: 4},
		{Mode: ModeIndirectSecondary, Primary: 2, Secondary: 2},
		{Mode: ModeSpecial, Primary: SpecialLiteral, Secondary: 0},
		{Mode: ModeSpecial, Primary: SpecialAddress, Secondary: 0},
	}
	for _, c := range cases {
		got := DecodeOpAdd(c.Encode())
		require.Equal(t, c, got)
	}
}

func TestConditionHolds(t *testing.T) {
	require.True(t, CondGT.Holds(false, false))
	require.False(t, CondGT.Holds(false, true))
	require.False(t, CondGT.Holds(true, false))
	require.True(t, CondLTE.Holds(true, false))
	require.True(t, CondLTE.Holds(false, true))
	require.False(t, CondLTE.Holds(false, false))
}

func TestReservedWordsCoverMnemonicsAndRegisters(t *testing.T) {
	reserved := DefaultTable().ReservedWords()
	require.True(t, reserved["MOV"])
	require.True(t, reserved["IFZ"])
	require.True(t, reserved["GA"])
	require.True(t, reserved["FL"])
	require.False(t, reserved["START"])
}
