package memory

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// Entry is one (address, value) pair swapped out of a page.
type Entry struct {
	Address uint32
	Value   uint16
}

// BackingStore is a single append-structured binary file mapping
// (process name, page index) to swapped-out page contents. Records are
// never rewritten in place: write appends, read scans for the last
// matching record, so a later paged-out write always supersedes an
// earlier one. An in-memory offset index turns read() into an O(1)
// seek, matching the "implementers may index in memory" allowance —
// the on-disk semantics are unchanged either way.
type BackingStore struct {
	mu   sync.Mutex
	path string
	file *os.File

	// index maps a (name, page) key to the file offset of its most
	// recent record.
	index map[key]int64
}

type key struct {
	name string
	page int32
}

// NewBackingStore opens (creating if necessary) the backing store file
// at path and rebuilds the in-memory offset index by scanning it.
func NewBackingStore(path string) (*BackingStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backing store: %w", err)
	}

	bs := &BackingStore{
		path:  path,
		file:  f,
		index: make(map[key]int64),
	}

	if err := bs.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}

	return bs, nil
}

// Close releases the underlying file handle.
func (bs *BackingStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.file.Close()
}

func (bs *BackingStore) rebuildIndex() error {
	if _, err := bs.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(bs.file)
	var offset int64

	for {
		rec, n, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("scan backing store: %w", err)
		}

		bs.index[key{name: rec.name, page: rec.page}] = offset
		offset += int64(n)
	}

	return nil
}

// Write appends a new record for (name, page), superseding any prior
// record for the same key on the next Read.
func (bs *BackingStore) Write(name string, page int32, entries []Entry) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	offset, err := bs.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek backing store: %w", err)
	}

	buf := encodeRecord(record{name: name, page: page, entries: entries})
	if _, err := bs.file.Write(buf); err != nil {
		return fmt.Errorf("append backing store: %w", err)
	}

	bs.index[key{name: name, page: page}] = offset

	return nil
}

// Read returns the entries most recently written for (name, page). ok
// is false if the page has never been swapped out.
func (bs *BackingStore) Read(name string, page int32) (entries []Entry, ok bool, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	offset, found := bs.index[key{name: name, page: page}]
	if !found {
		return nil, false, nil
	}

	if _, err := bs.file.Seek(offset, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("seek backing store: %w", err)
	}

	rec, _, err := readRecord(bufio.NewReader(bs.file))
	if err != nil {
		return nil, false, fmt.Errorf("read backing store record: %w", err)
	}

	return rec.entries, true, nil
}

// Pages returns every page index ever swapped out for name, resident or
// not, for use by the human-readable dump.
func (bs *BackingStore) Pages(name string) []int32 {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var pages []int32
	for k := range bs.index {
		if k.name == name {
			pages = append(pages, k.page)
		}
	}
	return pages
}

// Names returns every process name with at least one record in the
// store, for offline inspection of a backing store file without a
// live kernel.
func (bs *BackingStore) Names() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	seen := make(map[string]bool)
	var names []string
	for k := range bs.index {
		if !seen[k.name] {
			seen[k.name] = true
			names = append(names, k.name)
		}
	}
	return names
}

type record struct {
	name    string
	page    int32
	entries []Entry
}

func encodeRecord(rec record) []byte {
	nameBytes := []byte(rec.name)
	size := 4 + len(nameBytes) + 4 + 4 + len(rec.entries)*6
	buf := make([]byte, size)

	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(nameBytes)))
	off += 4
	copy(buf[off:], nameBytes)
	off += len(nameBytes)
	binary.LittleEndian.PutUint32(buf[off:], uint32(rec.page))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.entries)))
	off += 4
	for _, e := range rec.entries {
		binary.LittleEndian.PutUint32(buf[off:], e.Address)
		off += 4
		binary.LittleEndian.PutUint16(buf[off:], e.Value)
		off += 2
	}

	return buf
}

// readRecord decodes one record and returns its encoded byte length so
// callers can track file offsets while scanning sequentially.
func readRecord(r io.Reader) (record, int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return record{}, 0, err
	}
	nameLen := binary.LittleEndian.Uint32(lenBuf[:])
	n := 4

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return record{}, 0, io.ErrUnexpectedEOF
	}
	n += int(nameLen)

	var pageBuf, countBuf [4]byte
	if _, err := io.ReadFull(r, pageBuf[:]); err != nil {
		return record{}, 0, io.ErrUnexpectedEOF
	}
	n += 4
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return record{}, 0, io.ErrUnexpectedEOF
	}
	n += 4

	count := binary.LittleEndian.Uint32(countBuf[:])
	entries := make([]Entry, count)
	for i := uint32(0); i < count; i++ {
		var addrBuf [4]byte
		var valBuf [2]byte
		if _, err := io.ReadFull(r, addrBuf[:]); err != nil {
			return record{}, 0, io.ErrUnexpectedEOF
		}
		n += 4
		if _, err := io.ReadFull(r, valBuf[:]); err != nil {
			return record{}, 0, io.ErrUnexpectedEOF
		}
		n += 2

		entries[i] = Entry{
			Address: binary.LittleEndian.Uint32(addrBuf[:]),
			Value:   binary.LittleEndian.Uint16(valBuf[:]),
		}
	}

	return record{
		name:    string(nameBytes),
		page:    int32(binary.LittleEndian.Uint32(pageBuf[:])),
		entries: entries,
	}, n, nil
}
