// Package scheduler runs the fixed six-phase tick pipeline that ties
// the ready queues, core table, interpreter, and memory manager
// together under a pluggable dispatch policy.
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/csopesy/simcore/coretable"
	"github.com/csopesy/simcore/interpreter"
	"github.com/csopesy/simcore/memory"
	"github.com/csopesy/simcore/obs"
	"github.com/csopesy/simcore/process"
	"github.com/csopesy/simcore/tracing"
)

// Registry resolves process ids to their owning Process, and answers
// status-indexed queries, without the scheduler ever holding a pointer
// cycle back into the kernel's process table.
type Registry interface {
	Get(id int) (*process.Process, bool)
	IDsByStatus(status process.Status) []int
	All() map[int]*process.Process
}

// Scheduler owns the ready queue, the core table, and the tick counter.
// It never owns Process objects directly; every process it touches is
// resolved by id through a Registry supplied at Tick time.
type Scheduler struct {
	*obs.HookableBase

	mu sync.Mutex

	cores  *coretable.Table
	queue  *coretable.ReadyQueue
	policy coretable.Policy

	quantum int // configured RR quantum; 0 disables preemption and snapshotting

	mem    *memory.Manager
	interp *interpreter.Interpreter

	tickCount   uint64
	snapshotDir string

	pendingReap []int

	rec *tracing.Recorder
}

// SetRecorder attaches a trace recorder for dispatch and preempt events.
// A nil recorder disables tracing, which is also the zero-value behavior.
func (s *Scheduler) SetRecorder(rec *tracing.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
}

// New builds a Scheduler for the given core count and policy.
func New(
	numCores int,
	policy coretable.Policy,
	quantum int,
	mem *memory.Manager,
	interp *interpreter.Interpreter,
	snapshotDir string,
) *Scheduler {
	s := &Scheduler{
		HookableBase: obs.NewHookableBase(),
		cores:        coretable.New(numCores),
		queue:        coretable.NewReadyQueue(),
		policy:       policy,
		quantum:      quantum,
		mem:          mem,
		interp:       interp,
		snapshotDir:  snapshotDir,
	}

	mem.SetPageFaultHook(func(processID, page, frame int) {
		s.InvokeHook(obs.HookCtx{
			Domain: s,
			Pos:    obs.HookPosPageFault,
			Item:   processID,
			Detail: map[string]int{"page": page, "frame": frame},
		})
	})

	return s
}

// Submit enqueues an already-Waiting process at the tail of the ready
// queue, to be picked up by a future Dispatch phase.
func (s *Scheduler) Submit(pid int) {
	s.queue.PushBack(pid)
}

// CoreTable exposes the core table for read-only inspection.
func (s *Scheduler) CoreTable() *coretable.Table {
	return s.cores
}

// QueueLen reports how many processes are waiting for a core.
func (s *Scheduler) QueueLen() int {
	return s.queue.Len()
}

// Tick runs one pass of the six-phase pipeline against reg. Only one
// goroutine may call Tick at a time; the scheduler serializes internally
// as a defensive measure, but callers should already run a single tick
// loop.
func (s *Scheduler) Tick(reg Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem.SetTick(s.tickCount)

	s.runPhase("execute", func() { s.execute(reg) })
	s.runPhase("wake", func() { s.wake(reg) })
	s.runPhase("reap", func() { s.reap(reg) })
	if s.policy == coretable.RoundRobin {
		s.runPhase("preempt", func() { s.preempt(reg) })
	}
	s.runPhase("dispatch", func() { s.dispatch(reg) })
	s.runPhase("snapshot", func() { s.snapshot(reg) })

	s.tickCount++
	s.cores.Tick()
}

// runPhase invokes name's before/after hooks around fn, letting an
// attached observer trace exactly where within a tick time was spent.
func (s *Scheduler) runPhase(name string, fn func()) {
	s.InvokeHook(obs.HookCtx{Domain: s, Pos: obs.HookPosBeforePhase, Item: name, Detail: s.tickCount})
	fn()
	s.InvokeHook(obs.HookCtx{Domain: s, Pos: obs.HookPosAfterPhase, Item: name, Detail: s.tickCount})
}

func (s *Scheduler) execute(reg Registry) {
	for idx := 0; idx < s.cores.Len(); idx++ {
		pid := s.cores.AssignedProcess(idx)
		if pid == -1 {
			continue
		}

		p, ok := reg.Get(pid)
		if !ok || p.Status() != process.Running {
			continue
		}

		s.interp.Step(p)

		switch p.Status() {
		case process.Sleeping:
			// wake re-enqueues once sleep_remaining reaches zero; the
			// core is released now but the process must not be
			// dispatchable again until then.
			s.cores.Clear(idx)
			p.AssignedCore = -1
		case process.Finished, process.Faulted:
			s.cores.Clear(idx)
			p.AssignedCore = -1
			s.pendingReap = append(s.pendingReap, pid)
		}
	}
}

func (s *Scheduler) wake(reg Registry) {
	for _, pid := range reg.IDsByStatus(process.Sleeping) {
		p, ok := reg.Get(pid)
		if !ok {
			continue
		}

		p.SleepRemaining--
		if p.SleepRemaining <= 0 {
			p.SetStatus(process.Waiting)
			s.queue.PushBack(pid)
		}
	}
}

func (s *Scheduler) reap(reg Registry) {
	for _, pid := range s.pendingReap {
		if p, ok := reg.Get(pid); ok {
			s.mem.Release(p)
		}
	}
	s.pendingReap = s.pendingReap[:0]
}

func (s *Scheduler) preempt(reg Registry) {
	for _, idx := range s.cores.DecrementAllQuanta() {
		pid := s.cores.AssignedProcess(idx)
		p, ok := reg.Get(pid)
		if !ok {
			continue
		}

		p.SetStatus(process.Waiting)
		s.cores.Clear(idx)
		p.AssignedCore = -1
		s.queue.PushBack(pid)
		s.rec.Record(tracing.KindPreempt, s.tickCount, pid, -1, idx)
	}
}

func (s *Scheduler) dispatch(reg Registry) {
	for _, idx := range s.cores.IdleCores() {
		pid, ok := s.queue.PopFront()
		if !ok {
			return // strict FIFO: an empty queue leaves every remaining core idle
		}

		p, ok := reg.Get(pid)
		if !ok || p.Status() != process.Waiting {
			continue
		}

		if !s.mem.ReserveBlock(p) {
			s.queue.PushBack(pid)
			continue
		}

		quantum := 0
		if s.policy == coretable.RoundRobin {
			quantum = s.quantum
		}

		s.cores.TryAssign(idx, pid, quantum)
		p.AssignedCore = idx
		p.SetStatus(process.Running)
		s.rec.Record(tracing.KindDispatch, s.tickCount, pid, -1, idx)
		s.InvokeHook(obs.HookCtx{Domain: s, Pos: obs.HookPosDispatch, Item: pid, Detail: idx})
	}
}

func (s *Scheduler) snapshot(reg Registry) {
	if s.quantum <= 0 || s.snapshotDir == "" {
		return
	}
	if s.tickCount%uint64(s.quantum) != 0 {
		return
	}

	label := s.tickCount / uint64(s.quantum)
	if label == 0 {
		// tick 0 always lands on this cadence but no process has run
		// yet; skip the otherwise-empty pre-run snapshot.
		return
	}

	s.writeSnapshot(reg, label)
}

// GenerateSnapshotNow writes an out-of-cadence snapshot on demand,
// backing the generate_snapshot_now inspection command.
func (s *Scheduler) GenerateSnapshotNow(reg Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSnapshot(reg, s.tickCount)
}

func (s *Scheduler) writeSnapshot(reg Registry, label uint64) error {
	if s.snapshotDir == "" {
		return nil
	}

	body := s.mem.Snapshot(reg.All())
	path := filepath.Join(s.snapshotDir, fmt.Sprintf("memory_stamp_%02d.txt", label))
	return os.WriteFile(path, []byte(body), 0o644)
}

// TickCount returns the number of ticks run so far.
func (s *Scheduler) TickCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickCount
}
