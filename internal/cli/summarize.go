package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Generate a summary of one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := eng.Summarize(args[0])
	if err != nil {
		return err
	}

	fmt.Println(summary.SummaryText)
	if len(summary.KeyTopics) > 0 {
		fmt.Printf("topics:     %s\n", strings.Join(summary.KeyTopics, ", "))
	}
	fmt.Printf("memories:   %d\n", summary.MemoryCount)
	fmt.Printf("range:      %s .. %s\n",
		summary.DateFrom.Format("2006-01-02 15:04"),
		summary.DateTo.Format("2006-01-02 15:04"))
	fmt.Printf("importance: %.2f\n", summary.ImportanceScore)
	return nil
}
