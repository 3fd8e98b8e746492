package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/csopesy/simcore/memory"
)

var dumpBackingStoreCmd = &cobra.Command{
	Use:   "dump-backing-store PATH",
	Short: "Print every page recorded in a backing store file.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDumpBackingStore,
}

func init() {
	rootCmd.AddCommand(dumpBackingStoreCmd)
}

func runDumpBackingStore(_ *cobra.Command, args []string) error {
	store, err := memory.NewBackingStore(args[0])
	if err != nil {
		return fmt.Errorf("open backing store: %w", err)
	}
	defer store.Close()

	names := store.Names()
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("backing store is empty")
		return nil
	}

	for _, name := range names {
		fmt.Printf("process %s:\n", name)

		pages := store.Pages(name)
		sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })

		for _, page := range pages {
			entries, ok, err := store.Read(name, page)
			if err != nil {
				return fmt.Errorf("read page %d of %s: %w", page, name, err)
			}
			if !ok {
				continue
			}
			fmt.Printf("  page %d: %d swapped entries\n", page, len(entries))
		}
	}

	return nil
}
