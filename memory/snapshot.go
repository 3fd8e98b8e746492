package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/csopesy/simcore/process"
)

// Snapshot renders the human-readable frame-ownership report taken on
// each configured cadence: one line per occupied frame, its owner
// process, page index, and referenced bit.
func (m *Manager) Snapshot(processesByID map[int]*process.Process) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lines strings.Builder
	used, free := 0, 0
	for idx, f := range m.frames {
		if f.Owner == nil {
			free++
			continue
		}
		used++

		name := fmt.Sprintf("pid=%d", f.Owner.ProcessID)
		if p, ok := processesByID[f.Owner.ProcessID]; ok {
			name = p.Name
		}

		fmt.Fprintf(&lines, "frame %d: owner=%s page=%d referenced=%t\n",
			idx, name, f.Owner.Page, f.Referenced)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Frames: %d used, %d free, %d total\n", used, free, len(m.frames))
	b.WriteString(lines.String())

	return b.String()
}

// DumpBackingStore enumerates every named process's page table, stating
// for each page whether it is resident or swapped out. It is a
// read-only inspection command, independent of the mandatory
// per-generation snapshot cadence. It takes the memory lock for its
// whole run, the same read-snapshot discipline as Snapshot, since a
// process's page table is mutated by the tick loop's fault/evict path.
func (m *Manager) DumpBackingStore(processesByID map[int]*process.Process) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(processesByID))
	byName := make(map[string]*process.Process, len(processesByID))
	for _, p := range processesByID {
		names = append(names, p.Name)
		byName[p.Name] = p
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		p := byName[name]
		fmt.Fprintf(&b, "process %s:\n", name)

		pages := m.backing.Pages(name)
		sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })

		resident := make(map[int]bool, len(p.PageTable))
		for page, entry := range p.PageTable {
			resident[page] = entry.Valid
		}

		seen := make(map[int]bool, len(pages))
		for _, page := range pages {
			seen[int(page)] = true
			state := "swapped out"
			if resident[int(page)] {
				state = "resident"
			}
			fmt.Fprintf(&b, "  page %d: %s\n", page, state)
		}
		for page, valid := range resident {
			if seen[page] {
				continue
			}
			state := "swapped out"
			if valid {
				state = "resident"
			}
			fmt.Fprintf(&b, "  page %d: %s\n", page, state)
		}
	}

	return b.String()
}
