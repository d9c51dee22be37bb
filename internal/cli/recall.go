package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeep/internal/engine"
)

var (
	recallUser          string
	recallSession       string
	recallKeywords      []string
	recallFrom          string
	recallTo            string
	recallMinImportance float64
	recallLimit         int
	recallJSON          bool
)

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Query stored memories",
	RunE:  runRecall,
}

func init() {
	recallCmd.Flags().StringVar(&recallUser, "user", "", "filter by user id")
	recallCmd.Flags().StringVar(&recallSession, "session", "", "filter by session id")
	recallCmd.Flags().StringArrayVar(&recallKeywords, "keyword", nil, "keyword to match in content (repeatable, OR semantics)")
	recallCmd.Flags().StringVar(&recallFrom, "from", "", "earliest timestamp, RFC3339")
	recallCmd.Flags().StringVar(&recallTo, "to", "", "latest timestamp, RFC3339")
	recallCmd.Flags().Float64Var(&recallMinImportance, "min-importance", -1, "minimum importance")
	recallCmd.Flags().IntVar(&recallLimit, "limit", 0, "maximum results (0 = unlimited)")
	recallCmd.Flags().BoolVar(&recallJSON, "json", false, "emit JSON")
}

func runRecall(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	filter := engine.Filter{
		UserID:    recallUser,
		SessionID: recallSession,
		Keywords:  recallKeywords,
		Limit:     recallLimit,
	}
	if recallFrom != "" {
		t, err := time.Parse(time.RFC3339, recallFrom)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
		filter.DateFrom = &t
	}
	if recallTo != "" {
		t, err := time.Parse(time.RFC3339, recallTo)
		if err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
		filter.DateTo = &t
	}
	if recallMinImportance >= 0 {
		filter.MinImportance = &recallMinImportance
	}

	items, err := eng.Recall(filter)
	if err != nil {
		return err
	}

	if recallJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(items)
	}

	for _, item := range items {
		fmt.Printf("%s  [%.2f] %s/%s  %s\n",
			item.Timestamp.Format("2006-01-02 15:04"),
			item.Importance, item.UserID, item.SessionID, item.Content)
	}
	fmt.Fprintf(os.Stderr, "%d memories\n", len(items))
	return nil
}
