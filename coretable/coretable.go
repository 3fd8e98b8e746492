// Package coretable tracks per-core assignment state and the ready
// queues that feed cores work under the active scheduling policy.
package coretable

import "sync"

// Core is one logical CPU. AssignedProcess is -1 when the core is idle.
type Core struct {
	AssignedProcess int
	QuantumRemain   int
	ActiveTicks     uint64
	IdleTicks       uint64
	TotalTicks      uint64
}

// Table owns every core's assignment and tick counters, guarded by the
// core mutex in the fixed Queue → Core → Memory lock order.
type Table struct {
	mu    sync.RWMutex
	cores []Core
}

// New builds a Table of n idle cores.
func New(n int) *Table {
	cores := make([]Core, n)
	for i := range cores {
		cores[i].AssignedProcess = -1
	}
	return &Table{cores: cores}
}

// Len returns the number of cores.
func (t *Table) Len() int {
	return len(t.cores)
}

// TryAssign atomically assigns pid to core idx if it is currently idle.
func (t *Table) TryAssign(idx, pid, quantum int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cores[idx].AssignedProcess != -1 {
		return false
	}

	t.cores[idx].AssignedProcess = pid
	t.cores[idx].QuantumRemain = quantum
	return true
}

// Clear releases core idx back to idle.
func (t *Table) Clear(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cores[idx].AssignedProcess = -1
	t.cores[idx].QuantumRemain = 0
}

// AssignedProcess returns the process id running on core idx, or -1.
func (t *Table) AssignedProcess(idx int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cores[idx].AssignedProcess
}

// IdleCores returns the indices of every idle core, in ascending order.
func (t *Table) IdleCores() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var idle []int
	for i, c := range t.cores {
		if c.AssignedProcess == -1 {
			idle = append(idle, i)
		}
	}
	return idle
}

// DecrementAllQuanta subtracts one tick from every busy core's
// remaining quantum and returns the indices whose quantum just expired.
func (t *Table) DecrementAllQuanta() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []int
	for i := range t.cores {
		c := &t.cores[i]
		if c.AssignedProcess == -1 || c.QuantumRemain <= 0 {
			continue
		}
		c.QuantumRemain--
		if c.QuantumRemain == 0 {
			expired = append(expired, i)
		}
	}
	return expired
}

// Tick records one tick of activity for every core: active if busy,
// idle otherwise. Called once per tick by the scheduler after its
// snapshot phase so active_ticks + idle_ticks == total_ticks holds by
// construction.
func (t *Table) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.cores {
		c := &t.cores[i]
		c.TotalTicks++
		if c.AssignedProcess == -1 {
			c.IdleTicks++
		} else {
			c.ActiveTicks++
		}
	}
}

// Snapshot returns a copy of every core's state, safe to read
// concurrently with the tick loop.
func (t *Table) Snapshot() []Core {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Core, len(t.cores))
	copy(out, t.cores)
	return out
}
