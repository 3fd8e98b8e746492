package memory

// Builder configures and constructs a Manager.
type Builder struct {
	frameSize        int
	totalFrames      int
	maxOverallMem    int
	memPerProc       int
	backingStorePath string
}

// MakeBuilder creates a new builder with the config defaults.
func MakeBuilder() Builder {
	return Builder{
		frameSize:        16,
		maxOverallMem:    16384,
		memPerProc:       4096,
		backingStorePath: "csopesy-backing-store-data.bin",
	}
}

// WithFrameSize sets the size in bytes of one frame and one page.
func (b Builder) WithFrameSize(n int) Builder {
	b.frameSize = n
	return b
}

// WithMaxOverallMem sets the total addressable memory in bytes that the
// block allocator gates dispatch against.
func (b Builder) WithMaxOverallMem(n int) Builder {
	b.maxOverallMem = n
	return b
}

// WithBackingStorePath sets the file path the binary backing store is
// opened at.
func (b Builder) WithBackingStorePath(path string) Builder {
	b.backingStorePath = path
	return b
}

// WithMemPerProc sets the fixed per-process reservation size the
// dispatcher's admission gate charges against the block allocator,
// independent of any individual process's own memory_size.
func (b Builder) WithMemPerProc(n int) Builder {
	b.memPerProc = n
	return b
}

// Build opens the backing store and returns a ready Manager. total_frames
// is derived from max_overall_mem / frame_size, matching the fixed
// relationship between the block allocator's byte budget and the
// physical frame count it can ultimately back.
func (b Builder) Build() (*Manager, error) {
	backing, err := NewBackingStore(b.backingStorePath)
	if err != nil {
		return nil, err
	}

	totalFrames := b.maxOverallMem / b.frameSize
	if totalFrames < 1 {
		totalFrames = 1
	}

	return newManager(b.frameSize, totalFrames, b.maxOverallMem, b.memPerProc, backing), nil
}
