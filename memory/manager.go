package memory

import (
	"fmt"
	"sync"

	"github.com/csopesy/simcore/process"
	"github.com/csopesy/simcore/tracing"
)

// Stats is a read-only snapshot of the memory manager's monotone
// counters, safe to hand to inspection commands without holding a lock.
type Stats struct {
	FrameSize   int
	TotalFrames int
	UsedFrames  int
	FreeFrames  int
	PagedIn     uint64
	PagedOut    uint64
}

// Manager is the demand-paging subsystem: it owns the frame table, the
// block allocator gating dispatch, and the backing store frames spill
// to. Every exported method that reads or changes frame, block or
// page-table state takes the memory mutex; callers must never
// hold the queue or core mutex while calling in, per the fixed lock
// order Queue → Core → Memory.
type Manager struct {
	mu sync.RWMutex

	frameSize int
	frames    []Frame
	freeList  []int
	clockHand int

	blocks     *blockList
	backing    *BackingStore
	memPerProc int

	// processes resolves a frame owner's process id back to its Process
	// object so CLOCK eviction can invalidate the victim's page table
	// without the frame itself holding a pointer back to it.
	processes map[int]*process.Process

	pagedIn  uint64
	pagedOut uint64

	rec         *tracing.Recorder
	currentTick uint64

	onFault func(processID, page, frame int)
}

// SetPageFaultHook registers a callback invoked every time FaultIn
// installs a page, letting a caller forward the event onto its own
// observer mechanism without the memory manager depending on it.
func (m *Manager) SetPageFaultHook(fn func(processID, page, frame int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFault = fn
}

// newManager is unexported; callers configure a Manager through Builder.
func newManager(frameSize, totalFrames, maxOverallMem, memPerProc int, backing *BackingStore) *Manager {
	frames := make([]Frame, totalFrames)
	free := make([]int, totalFrames)
	for i := range free {
		free[i] = totalFrames - 1 - i
	}

	return &Manager{
		frameSize:  frameSize,
		frames:     frames,
		freeList:   free,
		blocks:     newBlockList(maxOverallMem),
		backing:    backing,
		memPerProc: memPerProc,
		processes:  make(map[int]*process.Process),
	}
}

// Close releases the backing store's file handle.
func (m *Manager) Close() error {
	return m.backing.Close()
}

// BackingStore exposes the underlying store for read-only inspection
// commands such as dump_backing_store.
func (m *Manager) BackingStore() *BackingStore {
	return m.backing
}

// SetRecorder attaches a trace recorder for fault_in and evict events. A
// nil recorder disables tracing, which is also the zero-value behavior.
func (m *Manager) SetRecorder(rec *tracing.Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec
}

// SetTick records the scheduler's current tick number, stamped onto
// every trace event this manager emits until the next call.
func (m *Manager) SetTick(tick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTick = tick
}

// ReserveBlock is the dispatcher's admission gate: it reserves a fixed
// mem_per_proc-sized span from the flat block allocator without eagerly
// allocating any frames. The reservation size is independent of the
// process's own declared memory_size. A process that already holds a
// reservation keeps it and ok is true without reserving again. ok is
// false when no free span is large enough, in which case the caller must
// rotate the process to the tail of the ready queue rather than dispatch
// it.
func (m *Manager) ReserveBlock(p *process.Process) (ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.processes[p.ID]; held {
		return true
	}

	if _, reserved := m.blocks.reserve(p.ID, m.memPerProc); !reserved {
		return false
	}

	m.processes[p.ID] = p
	return true
}

// Release frees process p's block reservation and every frame currently
// backing its page table, called from the scheduler's reap phase once a
// process has become Finished or Faulted.
func (m *Manager) Release(p *process.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks.release(p.ID)
	delete(m.processes, p.ID)

	for page, entry := range p.PageTable {
		if entry.Valid {
			m.freeFrame(entry.Frame)
		}
		delete(p.PageTable, page)
	}
}

func (m *Manager) freeFrame(idx int) {
	m.frames[idx] = Frame{}
	m.freeList = append(m.freeList, idx)
}

// FaultIn resolves a page fault for (p, page), installing it into a
// physical frame and returning that frame's index. It always makes
// progress in a bounded number of steps: either a free frame exists, or
// CLOCK finds one within at most two passes over the frame table.
func (m *Manager) FaultIn(p *process.Process, page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.freeList) > 0 {
		idx := m.freeList[len(m.freeList)-1]
		m.freeList = m.freeList[:len(m.freeList)-1]
		return m.install(p, page, idx)
	}

	return m.evictAndInstall(p, page)
}

// evictAndInstall runs CLOCK: total frames > 0 guarantees every
// referenced bit gets cleared within one pass and an evictable frame is
// found within the next, so this always terminates in ≤ 2*total steps.
func (m *Manager) evictAndInstall(p *process.Process, page int) int {
	total := len(m.frames)

	for {
		idx := m.clockHand
		m.clockHand = (m.clockHand + 1) % total

		f := &m.frames[idx]
		if f.Owner == nil {
			return m.install(p, page, idx)
		}
		if f.Referenced {
			f.Referenced = false
			continue
		}

		m.evict(idx)
		return m.install(p, page, idx)
	}
}

func (m *Manager) evict(idx int) {
	f := &m.frames[idx]
	owner := f.Owner

	victim, ok := m.processes[owner.ProcessID]
	if !ok {
		f.Owner = nil
		return
	}

	entries := m.collectPage(victim, owner.Page)
	if len(entries) > 0 {
		name, page := victim.Name, owner.Page
		m.mu.Unlock()
		_ = m.backing.Write(name, int32(page), entries)
		m.mu.Lock()
		m.pagedOut++
	}

	if pte, ok := victim.PageTable[owner.Page]; ok {
		pte.Valid = false
	}

	m.rec.Record(tracing.KindEvict, m.currentTick, owner.ProcessID, owner.Page, idx)
	f.Owner = nil
}

// collectPage gathers every stored (address, value) pair belonging to
// page from a process's sparse memory_values map.
func (m *Manager) collectPage(p *process.Process, page int) []Entry {
	lo := uint32(page * m.frameSize)
	hi := lo + uint32(m.frameSize)

	var entries []Entry
	for addr, val := range p.Values {
		if addr >= lo && addr < hi {
			entries = append(entries, Entry{Address: addr, Value: val})
		}
	}
	return entries
}

func (m *Manager) install(p *process.Process, page, idx int) int {
	m.frames[idx] = Frame{
		Owner:      &Owner{ProcessID: p.ID, Page: page},
		Referenced: true,
	}

	p.PageTable[page] = &process.PageTableEntry{Frame: idx, Valid: true, Dirty: false}

	if entries, found, _ := m.backing.Read(p.Name, int32(page)); found {
		for _, e := range entries {
			p.Values[e.Address] = e.Value
		}
	}

	m.pagedIn++
	m.rec.Record(tracing.KindFaultIn, m.currentTick, p.ID, page, idx)
	if m.onFault != nil {
		m.onFault(p.ID, page, idx)
	}
	return idx
}

// MarkReferenced sets a frame's referenced bit, called on every
// successful memory access to give it a grace period against CLOCK.
func (m *Manager) MarkReferenced(frame int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[frame].Referenced = true
}

// ErrAccessFault is returned by ReadWord/WriteWord when addr falls
// outside [0, process.MemorySize).
type ErrAccessFault struct{ Address uint32 }

func (e ErrAccessFault) Error() string {
	return fmt.Sprintf("access fault at address 0x%X", e.Address)
}

// ReadWord loads the word at addr in p's address space, faulting the
// page in on demand.
func (m *Manager) ReadWord(p *process.Process, addr uint32) (uint16, error) {
	frame, err := m.residentFrame(p, addr)
	if err != nil {
		return 0, err
	}
	m.MarkReferenced(frame)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return p.Values[addr], nil
}

// WriteWord stores value at addr in p's address space, faulting the
// page in on demand.
func (m *Manager) WriteWord(p *process.Process, addr uint32, value uint16) error {
	frame, err := m.residentFrame(p, addr)
	if err != nil {
		return err
	}
	m.MarkReferenced(frame)

	m.mu.Lock()
	defer m.mu.Unlock()
	p.Values[addr] = value
	return nil
}

func (m *Manager) residentFrame(p *process.Process, addr uint32) (int, error) {
	if addr >= p.MemorySize {
		return 0, ErrAccessFault{Address: addr}
	}

	page := int(addr) / m.frameSize

	m.mu.RLock()
	entry, ok := p.PageTable[page]
	resident := ok && entry.Valid
	frame := 0
	if resident {
		frame = entry.Frame
	}
	m.mu.RUnlock()

	if resident {
		return frame, nil
	}

	return m.FaultIn(p, page), nil
}

// Stats returns a snapshot of the manager's monotone counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	used := 0
	for _, f := range m.frames {
		if f.Owner != nil {
			used++
		}
	}

	return Stats{
		FrameSize:   m.frameSize,
		TotalFrames: len(m.frames),
		UsedFrames:  used,
		FreeFrames:  len(m.frames) - used,
		PagedIn:     m.pagedIn,
		PagedOut:    m.pagedOut,
	}
}
