package generator_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csopesy/simcore/generator"
	"github.com/csopesy/simcore/process"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []*process.Process
}

func (s *recordingSubmitter) SubmitGenerated(p *process.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, p)
	return nil
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func TestGeneratorBeginEndIdempotent(t *testing.T) {
	sub := &recordingSubmitter{}
	g := generator.New(generator.Config{BatchProcessFreq: 1, MinIns: 1, MaxIns: 5, MinMem: 64, MaxMem: 64}, sub, 1)

	assert.False(t, g.Running())
	g.Begin()
	g.Begin() // second Begin while running is a no-op
	assert.True(t, g.Running())

	g.End()
	g.End() // second End while stopped is a no-op
	assert.False(t, g.Running())
}

func TestGeneratorProducesProcessesOnInterval(t *testing.T) {
	sub := &recordingSubmitter{}
	// BatchProcessFreq is in units of 250ms; 1 gives a 250ms tick, so a
	// generous 2s window should yield at least two processes.
	g := generator.New(generator.Config{BatchProcessFreq: 1, MinIns: 1, MaxIns: 3, MinMem: 64, MaxMem: 128}, sub, 42)

	g.Begin()
	defer g.End()

	require.Eventually(t, func() bool {
		return sub.count() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGeneratorEndStopsProduction(t *testing.T) {
	sub := &recordingSubmitter{}
	g := generator.New(generator.Config{BatchProcessFreq: 1, MinIns: 1, MaxIns: 3, MinMem: 64, MaxMem: 64}, sub, 7)

	g.Begin()
	require.Eventually(t, func() bool { return sub.count() >= 1 }, time.Second, 10*time.Millisecond)
	g.End()

	after := sub.count()
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, after, sub.count(), "no further processes should be submitted after End")
}

func TestGeneratedProcessMemorySizeIsPowerOfTwoInRange(t *testing.T) {
	sub := &recordingSubmitter{}
	g := generator.New(generator.Config{BatchProcessFreq: 1, MinIns: 5, MaxIns: 10, MinMem: 100, MaxMem: 500}, sub, 3)

	g.Begin()
	require.Eventually(t, func() bool { return sub.count() >= 1 }, time.Second, 10*time.Millisecond)
	g.End()

	sub.mu.Lock()
	p := sub.subs[0]
	sub.mu.Unlock()

	assert.GreaterOrEqual(t, p.MemorySize, uint32(64))
	assert.LessOrEqual(t, p.MemorySize, uint32(65536))
	assert.Equal(t, p.MemorySize&(p.MemorySize-1), uint32(0), "memory size must be a power of two")
}
