package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one maintenance pass (expire, compress, summarize, cap)",
	RunE:  runDecay,
}

func runDecay(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := eng.RunDecay()
	if err != nil {
		return err
	}

	fmt.Printf("expired:     %d\n", stats.MemoriesExpired)
	fmt.Printf("compressed:  %d\n", stats.MemoriesCompressed)
	fmt.Printf("summarized:  %d\n", stats.SessionsSummarized)
	fmt.Printf("live:        %d -> %d\n", stats.TotalMemoriesBefore, stats.TotalMemoriesAfter)
	fmt.Printf("reclaimable: %d bytes (run compact to free)\n", stats.StorageSavedBytes)
	return nil
}
