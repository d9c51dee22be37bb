package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var exportUser string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump all live memories for a user as JSON",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "user id (required)")
	exportCmd.MarkFlagRequired("user")
}

func runExport(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := eng.Export(exportUser)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(items)
}
