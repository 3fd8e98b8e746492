// Package kernel is the single owning container for every Process in a
// run: it holds them by id, keeps a secondary name index, and wires the
// scheduler, memory manager, interpreter, and generator together behind
// the handful of operations an external shell or monitor is allowed to
// call.
package kernel

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/csopesy/simcore/config"
	"github.com/csopesy/simcore/coretable"
	"github.com/csopesy/simcore/generator"
	"github.com/csopesy/simcore/interpreter"
	"github.com/csopesy/simcore/memory"
	"github.com/csopesy/simcore/process"
	"github.com/csopesy/simcore/scheduler"
	"github.com/csopesy/simcore/tracing"
)

// Kernel is the facade every external collaborator (shell, monitor,
// CLI) drives the simulation through.
type Kernel struct {
	mu        sync.RWMutex
	processes map[int]*process.Process
	byName    map[string]int
	nextID    int

	cfg   config.Config
	mem   *memory.Manager
	sched *scheduler.Scheduler
	gen   *generator.Generator

	stopCh   chan struct{}
	drained  chan struct{}
	shutdown bool
	running  bool

	rec       *tracing.Recorder
	tracePath string
}

// New builds and wires every subsystem from cfg. snapshotDir is where
// per-quantum memory_stamp_NN.txt files are written and, when non-empty,
// where the paging/dispatch trace database also lives; pass "" to
// disable both the snapshot cadence and tracing.
func New(cfg config.Config, backingStorePath, snapshotDir string) (*Kernel, error) {
	mem, err := memory.MakeBuilder().
		WithFrameSize(cfg.MemPerFrame).
		WithMaxOverallMem(cfg.MaxOverallMem).
		WithMemPerProc(cfg.MemPerProc).
		WithBackingStorePath(backingStorePath).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build memory manager: %w", err)
	}

	interp := interpreter.New(mem, time.Duration(cfg.DelayPerExec)*time.Millisecond)

	policy := coretable.ParsePolicy(cfg.Scheduler)
	sched := scheduler.New(cfg.NumCPU, policy, cfg.QuantumCycles, mem, interp, snapshotDir)

	var rec *tracing.Recorder
	var tracePath string
	if snapshotDir != "" {
		tracePath = filepath.Join(snapshotDir, "csopesy-events.sqlite3")
		rec, err = tracing.NewRecorder(tracePath)
		if err != nil {
			return nil, fmt.Errorf("build trace recorder: %w", err)
		}
	}
	mem.SetRecorder(rec)
	sched.SetRecorder(rec)

	k := &Kernel{
		processes: make(map[int]*process.Process),
		byName:    make(map[string]int),
		cfg:       cfg,
		mem:       mem,
		sched:     sched,
		rec:       rec,
		tracePath: tracePath,
	}

	genCfg := generator.Config{
		BatchProcessFreq: cfg.BatchProcessFreq,
		MinIns:           cfg.MinIns,
		MaxIns:           cfg.MaxIns,
		MinMem:           uint32(cfg.MinMemPerProc),
		MaxMem:           uint32(cfg.MaxMemPerProc),
	}
	k.gen = generator.New(genCfg, k, time.Now().UnixNano())

	return k, nil
}

// Start launches the tick loop in the background: 1ms sleep between
// ticks, exactly as the pipeline's suspension points specify.
func (k *Kernel) Start() {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.stopCh = make(chan struct{})
	k.drained = make(chan struct{})
	k.mu.Unlock()

	go k.runLoop()
}

func (k *Kernel) runLoop() {
	defer close(k.drained)

	for {
		k.mu.RLock()
		shuttingDown := k.shutdown
		k.mu.RUnlock()

		if shuttingDown && k.allTerminal() {
			return
		}

		k.sched.Tick(k)
		time.Sleep(time.Millisecond)
	}
}

func (k *Kernel) allTerminal() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, p := range k.processes {
		s := p.Status()
		if s != process.Finished && s != process.Faulted {
			return false
		}
	}
	return true
}

// Shutdown sets the drain flag and blocks until the tick loop has run
// every process to a terminal state and exited.
func (k *Kernel) Shutdown() {
	k.mu.Lock()
	k.shutdown = true
	drained := k.drained
	k.mu.Unlock()

	k.gen.End()

	if drained != nil {
		<-drained
	}

	k.mem.Close()
	k.rec.Close()
}

// SubmitProcess validates and admits a new process, matching the
// external submit_process(name, memory_size, instructions?) surface. An
// empty script generates a synthetic one, a DECLARE followed by PRINT
// statements, whose length is drawn from the configured min/max
// instruction bounds and capped at process.MaxInstructions.
func (k *Kernel) SubmitProcess(name string, memorySize uint32, script string) (*process.Process, error) {
	if !isValidMemorySize(memorySize) {
		return nil, fmt.Errorf("invalid memory allocation")
	}

	k.mu.Lock()
	if _, exists := k.byName[name]; exists {
		k.mu.Unlock()
		return nil, fmt.Errorf("process name %q already exists", name)
	}
	k.mu.Unlock()

	if script == "" {
		script = randomScript(k.cfg.MinIns, k.cfg.MaxIns)
	}

	instrs, err := process.Parse(script)
	if err != nil {
		return nil, err
	}

	p := k.register(name, memorySize, instrs)
	k.sched.Submit(p.ID)

	return p, nil
}

// SubmitGenerated implements generator.Submitter: it admits a process
// the background generator already shaped, skipping instruction
// re-parsing since the generator hands over decoded instructions.
func (k *Kernel) SubmitGenerated(p *process.Process) error {
	registered := k.register(p.Name, p.MemorySize, p.Instructions)
	k.sched.Submit(registered.ID)
	return nil
}

func (k *Kernel) register(name string, memorySize uint32, instrs []process.Instruction) *process.Process {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.nextID++
	id := k.nextID

	p := process.New(id, name, memorySize, instrs)
	k.processes[id] = p
	k.byName[name] = id

	return p
}

func isValidMemorySize(n uint32) bool {
	if n < 64 || n > 65536 {
		return false
	}
	return n&(n-1) == 0
}

func randomScript(minIns, maxIns int) string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	count := minIns
	if maxIns > minIns {
		count = minIns + rng.Intn(maxIns-minIns+1)
	}
	if count > process.MaxInstructions {
		count = process.MaxInstructions
	}
	if count < 1 {
		count = 1
	}

	script := "DECLARE x 1;"
	for i := 1; i < count; i++ {
		script += `PRINT("x=" + x);`
	}
	return script
}

// --- scheduler.Registry ---

// Get resolves a process id, satisfying scheduler.Registry.
func (k *Kernel) Get(id int) (*process.Process, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	p, ok := k.processes[id]
	return p, ok
}

// IDsByStatus returns every process id currently in status, satisfying
// scheduler.Registry.
func (k *Kernel) IDsByStatus(status process.Status) []int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var ids []int
	for id, p := range k.processes {
		if p.Status() == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// All returns every process by id, satisfying scheduler.Registry.
func (k *Kernel) All() map[int]*process.Process {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make(map[int]*process.Process, len(k.processes))
	for id, p := range k.processes {
		out[id] = p
	}
	return out
}

// --- inspection surface ---

// GetProcess resolves a process by name, backing get_process and
// query_process.
func (k *Kernel) GetProcess(name string) (*process.Process, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	id, ok := k.byName[name]
	if !ok {
		return nil, false
	}
	return k.processes[id], true
}

// ListByStatus returns every process currently in status.
func (k *Kernel) ListByStatus(status process.Status) []*process.Process {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var out []*process.Process
	for _, p := range k.processes {
		if p.Status() == status {
			out = append(out, p)
		}
	}
	return out
}

// CoreStats is the aggregate report core_stats returns.
type CoreStats struct {
	Cores       []coretable.Core
	QueueLen    int
	MemoryStats memory.Stats
}

// CoreStats reports per-core ticks alongside the memory manager's
// paging counters.
func (k *Kernel) CoreStats() CoreStats {
	return CoreStats{
		Cores:       k.QueryCoreState(),
		QueueLen:    k.sched.QueueLen(),
		MemoryStats: k.mem.Stats(),
	}
}

// TickCount reports how many scheduler ticks have run so far.
func (k *Kernel) TickCount() uint64 {
	return k.sched.TickCount()
}

// QueryCoreState reports per-core assignment, the query_core_state
// operation.
func (k *Kernel) QueryCoreState() []coretable.Core {
	return k.sched.CoreTable().Snapshot()
}

// MemoryStats reports the memory manager's paging counters.
func (k *Kernel) MemoryStats() memory.Stats {
	return k.mem.Stats()
}

// BeginGeneration starts the background synthetic-process generator.
func (k *Kernel) BeginGeneration() {
	k.gen.Begin()
}

// EndGeneration stops the generator without touching the tick pipeline.
func (k *Kernel) EndGeneration() {
	k.gen.End()
}

// GenerateSnapshotNow writes an out-of-cadence memory snapshot.
func (k *Kernel) GenerateSnapshotNow() error {
	return k.sched.GenerateSnapshotNow(k)
}

// DumpBackingStore renders the human-readable per-page residency
// report across every process this kernel has ever admitted.
func (k *Kernel) DumpBackingStore() string {
	return k.mem.DumpBackingStore(k.All())
}

// Trace queries the paging/dispatch event log for every event of the
// given kind, most recent first. It returns an error if tracing was
// never enabled for this kernel. Only events the recorder has already
// flushed to its database are returned; the recorder flushes every 1000
// events and when Shutdown closes it.
func (k *Kernel) Trace(kind tracing.Kind) ([]tracing.Event, error) {
	if k.tracePath == "" {
		return nil, fmt.Errorf("tracing is not enabled for this kernel")
	}
	return tracing.Query(k.tracePath, kind)
}
