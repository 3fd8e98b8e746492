package process

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenarioOne(t *testing.T) {
	instrs, err := Parse(`DECLARE x 5; ADD x x 3; PRINT("v=" + x);`)
	require.NoError(t, err)
	require.Len(t, instrs, 3)

	assert.Equal(t, DeclareInstr{Var: "x", Imm: 5}, instrs[0])
	assert.Equal(t, ArithInstr{Op: AddOp, Dst: "x", A: "x", B: Operand{IsLiteral: true, Literal: 3}}, instrs[1])
	assert.Equal(t, PrintInstr{Terms: []PrintTerm{
		{IsLiteral: true, Literal: "v="},
		{Var: "x"},
	}}, instrs[2])
}

func TestParseReadWrite(t *testing.T) {
	instrs, err := Parse(`WRITE 0x10 7; READ y 0x10;`)
	require.NoError(t, err)
	require.Len(t, instrs, 2)

	write, ok := instrs[0].(WriteInstr)
	require.True(t, ok)
	assert.True(t, write.Addr.Valid)
	assert.Equal(t, uint32(0x10), write.Addr.Value)
	assert.Equal(t, Operand{IsLiteral: true, Literal: 7}, write.Value)

	read, ok := instrs[1].(ReadInstr)
	require.True(t, ok)
	assert.Equal(t, "y", read.Var)
	assert.True(t, read.Addr.Valid)
}

func TestParseUnparsableAddressIsKeptInvalid(t *testing.T) {
	instrs, err := Parse(`WRITE zz 1;`)
	require.NoError(t, err)

	write := instrs[0].(WriteInstr)
	assert.False(t, write.Addr.Valid)
}

func TestParseRejectsTooManyInstructions(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxInstructions+1; i++ {
		b.WriteString("SLEEP 1;")
	}

	_, err := Parse(b.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid command")
}

func TestParseForLoop(t *testing.T) {
	instrs, err := Parse(`FOR_START 3; ADD x x 1; FOR_END;`)
	require.NoError(t, err)
	require.Len(t, instrs, 3)
	assert.Equal(t, ForStartInstr{Iterations: 3}, instrs[0])
	assert.Equal(t, ForEndInstr{}, instrs[2])
}

func TestParseUnknownOpcode(t *testing.T) {
	_, err := Parse(`FROBNICATE 1;`)
	require.Error(t, err)
}
