package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the log dropping tombstoned records",
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	reclaimed, err := eng.Compact()
	if err != nil {
		return err
	}

	fmt.Printf("reclaimed %d bytes\n", reclaimed)
	return nil
}
