package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	saveUser       string
	saveSession    string
	saveImportance float64
	saveTTL        int
	saveMeta       []string
)

var saveCmd = &cobra.Command{
	Use:   "save <content>",
	Short: "Store one memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveUser, "user", "", "user id (required)")
	saveCmd.Flags().StringVar(&saveSession, "session", "", "session id")
	saveCmd.Flags().Float64Var(&saveImportance, "importance", 0.5, "importance score, clamped to [0,1]")
	saveCmd.Flags().IntVar(&saveTTL, "ttl", 0, "explicit TTL in hours (0 = policy max age applies)")
	saveCmd.Flags().StringArrayVar(&saveMeta, "meta", nil, "metadata entry key=value (repeatable)")
	saveCmd.MarkFlagRequired("user")
}

func runSave(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	var metadata map[string]string
	for _, kv := range saveMeta {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --meta entry %q, want key=value", kv)
		}
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata[key] = value
	}

	id, err := eng.Save(saveUser, saveSession, args[0], metadata, saveImportance, saveTTL)
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}
