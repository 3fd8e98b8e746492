// Package generator produces synthetic processes at a configured
// interval, standing in for an interactive operator during unattended
// load testing.
package generator

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csopesy/simcore/process"
)

// Config bounds the synthetic processes a Generator produces.
type Config struct {
	BatchProcessFreq int // generator interval, units of 250ms
	MinIns, MaxIns   int
	MinMem, MaxMem   uint32
}

// Submitter accepts a freshly generated process the way submit_process
// would for an operator-issued submission.
type Submitter interface {
	SubmitGenerated(p *process.Process) error
}

// Generator is a background source of load, started and stopped by
// begin_generation/end_generation without affecting the tick pipeline.
type Generator struct {
	cfg Config
	sub Submitter
	rng *rand.Rand

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    sync.WaitGroup
	counter uint64
}

// New returns a stopped Generator. seed makes process shapes
// reproducible across runs with the same config.
func New(cfg Config, sub Submitter, seed int64) *Generator {
	return &Generator{
		cfg: cfg,
		sub: sub,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Begin starts the background generation loop if it is not already
// running.
func (g *Generator) Begin() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return
	}
	g.running = true
	g.stop = make(chan struct{})

	interval := time.Duration(g.cfg.BatchProcessFreq) * 250 * time.Millisecond
	stop := g.stop

	g.done.Add(1)
	go func() {
		defer g.done.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p := g.next()
				_ = g.sub.SubmitGenerated(p)
			}
		}
	}()
}

// End stops the background generation loop and waits for it to exit, so
// no process is submitted after End returns. The pipeline itself is
// unaffected: already-submitted processes keep running to completion.
func (g *Generator) End() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	close(g.stop)
	g.running = false
	g.mu.Unlock()

	g.done.Wait()
}

// Running reports whether the generator loop is currently active.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Generator) next() *process.Process {
	n := atomic.AddUint64(&g.counter, 1)
	name := fmt.Sprintf("p%d", n)

	g.mu.Lock()
	memSize := roundToPowerOfTwo(randRange(g.rng, int(g.cfg.MinMem), int(g.cfg.MaxMem)))
	insCount := randRange(g.rng, g.cfg.MinIns, g.cfg.MaxIns)
	script := g.syntheticScript(insCount)
	g.mu.Unlock()

	instrs, err := process.Parse(script)
	if err != nil {
		instrs = nil
	}

	return process.New(0, name, uint32(memSize), instrs)
}

// syntheticScript produces a random mix of every opcode except
// FOR_START/FOR_END, matching the generator's exclusion of nested loops
// from load-testing traffic.
func (g *Generator) syntheticScript(count int) string {
	if count < 1 {
		count = 1
	}
	if count > process.MaxInstructions {
		count = process.MaxInstructions
	}

	stmts := make([]string, 0, count)
	stmts = append(stmts, "DECLARE x 1")

	for i := 1; i < count; i++ {
		switch g.rng.Intn(6) {
		case 0:
			stmts = append(stmts, "ADD x x 1")
		case 1:
			stmts = append(stmts, "SUBTRACT x x 1")
		case 2:
			stmts = append(stmts, `PRINT("x=" + x)`)
		case 3:
			stmts = append(stmts, "SLEEP 1")
		case 4:
			stmts = append(stmts, "WRITE 0x0 1")
		case 5:
			stmts = append(stmts, "READ x 0x0")
		}
	}

	script := ""
	for _, s := range stmts {
		script += s + ";"
	}
	return script
}

func randRange(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// roundToPowerOfTwo rounds n up to the next power of two, clamped to
// the [64, 65536] range every submitted process's memory size must lie
// in.
func roundToPowerOfTwo(n int) int {
	if n < 64 {
		return 64
	}
	if n > 65536 {
		return 65536
	}

	p := 64
	for p < n {
		p *= 2
	}
	return p
}
