package memory

import "fmt"

// block is one contiguous span of the flat space handed out by
// blockList. A block is either free or owned by exactly one process.
type block struct {
	start, length int
	owner         int // process id, or -1 if free
}

// blockList is a first-fit allocator over a fixed-size flat span,
// tracking which contiguous ranges belong to which process. The Manager
// sizes it in bytes of max_overall_mem and reserves mem_per_proc bytes
// per admitted process; it only gates admission, and its ranges are
// neither physical frame indices nor addresses within a process.
type blockList struct {
	blocks    []block
	pageCount int
}

func newBlockList(pageCount int) *blockList {
	return &blockList{
		blocks:    []block{{start: 0, length: pageCount, owner: -1}},
		pageCount: pageCount,
	}
}

// reserve finds the first free span of at least length pages and
// assigns it to owner, splitting the free block if it is larger than
// needed. It returns false if no span of that size exists anywhere in
// the list, matching the memory manager's "insufficient space" case.
func (bl *blockList) reserve(owner, length int) (start int, ok bool) {
	for i, b := range bl.blocks {
		if b.owner != -1 || b.length < length {
			continue
		}

		if b.length == length {
			bl.blocks[i].owner = owner
			return b.start, true
		}

		bl.blocks[i] = block{start: b.start, length: length, owner: owner}
		remainder := block{start: b.start + length, length: b.length - length, owner: -1}
		bl.blocks = append(bl.blocks, block{})
		copy(bl.blocks[i+2:], bl.blocks[i+1:])
		bl.blocks[i+1] = remainder

		return b.start, true
	}

	return 0, false
}

// release frees every block owned by owner and coalesces it with
// adjacent free neighbors.
func (bl *blockList) release(owner int) {
	for i := range bl.blocks {
		if bl.blocks[i].owner == owner {
			bl.blocks[i].owner = -1
		}
	}
	bl.coalesce()
}

func (bl *blockList) coalesce() {
	merged := make([]block, 0, len(bl.blocks))
	for _, b := range bl.blocks {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.owner == -1 && b.owner == -1 && last.start+last.length == b.start {
				last.length += b.length
				continue
			}
		}
		merged = append(merged, b)
	}
	bl.blocks = merged
}

// freePages returns the total number of unreserved pages.
func (bl *blockList) freePages() int {
	free := 0
	for _, b := range bl.blocks {
		if b.owner == -1 {
			free += b.length
		}
	}
	return free
}

// largestFreeRun is the size of the biggest single reservable span; a
// reservation longer than this fails even when freePages is larger.
func (bl *blockList) largestFreeRun() int {
	largest := 0
	for _, b := range bl.blocks {
		if b.owner == -1 && b.length > largest {
			largest = b.length
		}
	}
	return largest
}

func (bl *blockList) String() string {
	return fmt.Sprintf("blockList{pages=%d free=%d}", bl.pageCount, bl.freePages())
}
