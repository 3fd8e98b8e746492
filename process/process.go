// Package process defines the synthetic process state machine: its
// status lifecycle, its per-process virtual memory bookkeeping (symbol
// table, page table, memory values), and the decoded instruction stream
// the interpreter executes.
package process

import (
	"fmt"
	"sync"
	"time"
)

// Status is a point in a Process's lifecycle.
type Status int

// The five statuses a Process can occupy. A Process starts Waiting and
// terminates exactly once into Finished or Faulted.
const (
	Waiting Status = iota
	Running
	Sleeping
	Finished
	Faulted
)

// String renders a Status the way logs and inspection commands expect it.
func (s Status) String() string {
	switch s {
	case Waiting:
		return "Waiting"
	case Running:
		return "Running"
	case Sleeping:
		return "Sleeping"
	case Finished:
		return "Finished"
	case Faulted:
		return "Faulted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MaxSymbols is the per-process cap on distinct declared/auto-declared
// variables, enforced by the bump allocator in the symbol table region.
const MaxSymbols = 32

// SymbolSlotSize is the width in bytes of one symbol table slot.
const SymbolSlotSize = 2

// PageTableEntry is one row of a Process's page table.
type PageTableEntry struct {
	Frame int
	Valid bool
	Dirty bool
}

// ForFrame is one level of nested FOR_START/FOR_END bookkeeping.
type ForFrame struct {
	ReturnPC  int
	Remaining int
}

// FaultInfo records the circumstances of a memory access violation.
type FaultInfo struct {
	Timestamp time.Time
	Address   uint32
}

// Process is a synthetic program plus all of the state the scheduler,
// interpreter, and memory manager need to run it.
type Process struct {
	mu sync.RWMutex

	ID                int
	Name              string
	status            Status
	AssignedCore      int
	CreationTimestamp time.Time
	MemorySize        uint32
	Instructions      []Instruction
	PC                int
	SleepRemaining    int
	ForStack          []ForFrame
	Logs              []string

	PageTable map[int]*PageTableEntry
	Values    map[uint32]uint16

	SymbolTable map[string]uint32
	nextVarAddr uint32

	FaultInfo *FaultInfo
}

// New creates a Waiting process with an empty address space.
func New(id int, name string, memorySize uint32, instructions []Instruction) *Process {
	return &Process{
		ID:                id,
		Name:              name,
		status:            Waiting,
		AssignedCore:      -1,
		CreationTimestamp: time.Now(),
		MemorySize:        memorySize,
		Instructions:      instructions,
		PageTable:         make(map[int]*PageTableEntry),
		Values:            make(map[uint32]uint16),
		SymbolTable:       make(map[string]uint32),
	}
}

// Status returns the current status under the process's read lock, so
// inspection commands never observe a torn update.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SetStatus transitions the process. Only the tick loop calls this.
func (p *Process) SetStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// Log appends a timestamped line, matching the literal format used by
// every persisted report in this system.
func (p *Process) Log(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Logs = append(p.Logs, fmt.Sprintf("(%s) %s", timestamp(time.Now()), line))
}

// LogsSnapshot returns a copy of the log lines, safe to read while the
// tick loop is appending to the live slice.
func (p *Process) LogsSnapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.Logs))
	copy(out, p.Logs)
	return out
}

// timestamp renders the literal "(MM/DD/YYYY hh:mm:ssAM/PM)" body used
// throughout the persisted reports.
func timestamp(t time.Time) string {
	return t.Format("01/02/2006 03:04:05PM")
}

// SetFault records a memory access violation and moves the process to
// Faulted. Resources are released by the caller (the scheduler's reap
// phase), not here, so this method never touches core or memory locks.
func (p *Process) SetFault(addr uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = Faulted
	p.FaultInfo = &FaultInfo{Timestamp: time.Now(), Address: addr}
}

// Fault returns a copy of the fault record, or nil if the process never
// faulted.
func (p *Process) Fault() *FaultInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.FaultInfo == nil {
		return nil
	}
	f := *p.FaultInfo
	return &f
}

// ResolveVar returns the address bound to name, auto-declaring it at
// value 0 if this is the first reference and the symbol table has room.
// ok is false when the 32-entry cap has already been reached; callers
// must then treat the reference as a silent no-op / value-0 read.
func (p *Process) ResolveVar(name string) (addr uint32, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, found := p.SymbolTable[name]; found {
		return a, true
	}

	if len(p.SymbolTable) >= MaxSymbols {
		return 0, false
	}

	addr = p.nextVarAddr
	p.SymbolTable[name] = addr
	p.nextVarAddr += SymbolSlotSize
	p.Values[addr] = 0

	return addr, true
}

// DeclareVar behaves like ResolveVar but always (re)initializes the
// variable's value, matching the DECLARE opcode's semantics: a second
// DECLARE of the same name is a fresh allocation attempt only if the
// name is not already bound.
func (p *Process) DeclareVar(name string, value uint16) (addr uint32, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, found := p.SymbolTable[name]; found {
		p.Values[a] = value
		return a, true
	}

	if len(p.SymbolTable) >= MaxSymbols {
		return 0, false
	}

	addr = p.nextVarAddr
	p.SymbolTable[name] = addr
	p.nextVarAddr += SymbolSlotSize
	p.Values[addr] = value

	return addr, true
}

// SymbolCount returns the number of distinct declared variables.
func (p *Process) SymbolCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.SymbolTable)
}
