package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seralabs/telepilot/pkg/sessionstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved login sessions",
	Long: `Manage saved login sessions.

Each completed login persists the browser's authentication state keyed by
phone number. List shows what is stored; delete forces the next login for
that number to go through the full flow.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <phone>",
	Short: "Delete the saved session for a phone number",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	sessionsListCmd.Flags().Bool("json", false, "Output as JSON")
}

func sessionStoreFromConfig(cmd *cobra.Command) (*sessionstore.Store, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return sessionstore.NewStore(cfg.Storage.SessionsDir), nil
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := sessionStoreFromConfig(cmd)
	if err != nil {
		return err
	}

	phones, err := store.List()
	if err != nil {
		return err
	}
	if len(phones) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No saved sessions")
		return nil
	}

	type sessionRow struct {
		Phone   string `json:"phone"`
		SavedAt string `json:"saved_at,omitempty"`
	}

	rows := make([]sessionRow, 0, len(phones))
	for _, phone := range phones {
		row := sessionRow{Phone: phone}
		if rec, err := store.Load(phone); err == nil && rec != nil {
			if savedAt, ok := rec.Metadata["saved_at"].(string); ok {
				row.SavedAt = savedAt
			}
		}
		rows = append(rows, row)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "PHONE\tSAVED AT")
	for _, row := range rows {
		savedAt := row.SavedAt
		if savedAt == "" {
			savedAt = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row.Phone, savedAt)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := sessionStoreFromConfig(cmd)
	if err != nil {
		return err
	}

	deleted, err := store.Delete(args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no saved session for %s", args[0])
	}
	_, _ = fmt.Fprintf(os.Stdout, "Deleted session for %s\n", args[0])
	return nil
}
