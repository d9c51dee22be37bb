package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeep/internal/engine"
)

var (
	sessionsUser     string
	sessionsKeywords []string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a user's sessions, optionally filtered by keywords",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsUser, "user", "", "user id (required)")
	sessionsCmd.Flags().StringArrayVar(&sessionsKeywords, "keyword", nil, "only sessions whose memories match (repeatable)")
	sessionsCmd.MarkFlagRequired("user")
}

func runSessions(cmd *cobra.Command, args []string) error {
	eng, closeStore, err := openEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	var sessions []engine.Session
	if len(sessionsKeywords) > 0 {
		sessions, err = eng.Sessions.Search(sessionsUser, sessionsKeywords)
	} else {
		sessions, err = eng.Sessions.Sessions(sessionsUser)
	}
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		tags := ""
		if len(sess.Tags) > 0 {
			tags = "  [" + strings.Join(sess.Tags, ", ") + "]"
		}
		fmt.Printf("%s  %3d memories  last active %s%s\n",
			sess.ID, sess.MemoryCount,
			sess.LastActive.Format("2006-01-02 15:04"), tags)
	}
	fmt.Fprintf(os.Stderr, "%d sessions\n", len(sessions))
	return nil
}
