package interpreter_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csopesy/simcore/interpreter"
	"github.com/csopesy/simcore/memory"
	"github.com/csopesy/simcore/process"
)

func newManager(t *testing.T, frameSize, maxOverallMem int) *memory.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing-store.bin")
	mgr, err := memory.MakeBuilder().
		WithFrameSize(frameSize).
		WithMaxOverallMem(maxOverallMem).
		WithMemPerProc(maxOverallMem).
		WithBackingStorePath(path).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestScenarioOneDeclareAddPrint(t *testing.T) {
	mgr := newManager(t, 16, 64)
	instrs, err := process.Parse(`DECLARE x 5; ADD x x 3; PRINT("v=" + x);`)
	require.NoError(t, err)

	p := process.New(1, "p1", 64, instrs)
	require.True(t, mgr.ReserveBlock(p))
	p.SetStatus(process.Running)

	in := interpreter.New(mgr, 0)
	for p.Status() == process.Running {
		in.Step(p)
	}

	assert.Equal(t, process.Finished, p.Status())
	logs := p.LogsSnapshot()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "v=8")
}

func TestForLoopRepeatsBody(t *testing.T) {
	mgr := newManager(t, 16, 64)
	instrs, err := process.Parse(`DECLARE x 0; FOR_START 3; ADD x x 1; FOR_END;`)
	require.NoError(t, err)

	p := process.New(1, "p1", 64, instrs)
	require.True(t, mgr.ReserveBlock(p))
	p.SetStatus(process.Running)

	in := interpreter.New(mgr, 0)
	for i := 0; i < 20 && p.Status() == process.Running; i++ {
		in.Step(p)
	}

	addr, _ := p.ResolveVar("x")
	assert.Equal(t, uint16(3), p.Values[addr])
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	mgr := newManager(t, 16, 64)
	instrs, err := process.Parse(`WRITE 0x4 7; READ y 0x4;`)
	require.NoError(t, err)

	p := process.New(1, "p1", 64, instrs)
	require.True(t, mgr.ReserveBlock(p))
	p.SetStatus(process.Running)

	in := interpreter.New(mgr, 0)
	in.Step(p)
	in.Step(p)

	addr, _ := p.ResolveVar("y")
	assert.Equal(t, uint16(7), p.Values[addr])
}

func TestOutOfRangeWriteFaults(t *testing.T) {
	mgr := newManager(t, 16, 8192)
	instrs, err := process.Parse(`WRITE 0x200000 1;`)
	require.NoError(t, err)

	p := process.New(1, "p1", 4096, instrs)
	require.True(t, mgr.ReserveBlock(p))
	p.SetStatus(process.Running)

	interpreter.New(mgr, 0).Step(p)

	assert.Equal(t, process.Faulted, p.Status())
	require.NotNil(t, p.Fault())
	assert.Equal(t, uint32(0x200000), p.Fault().Address)
}
