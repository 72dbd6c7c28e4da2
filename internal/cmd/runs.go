package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seralabs/telepilot/pkg/telemetry"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded automation runs",
	Long: `Inspect recorded automation runs.

Every login records its operations under the runs directory and renders a
markdown report under the reports directory.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_name>",
	Short: "Show details for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsReportCmd = &cobra.Command{
	Use:   "report <run_name>",
	Short: "Print the markdown report for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsReport,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsReportCmd)

	runsListCmd.Flags().Bool("json", false, "Output as JSON")
	runsShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func loadRunData(runsDir, runName string) (*telemetry.RunData, error) {
	if runName != filepath.Base(runName) {
		return nil, fmt.Errorf("invalid run name: %s", runName)
	}
	raw, err := os.ReadFile(filepath.Join(runsDir, runName, "run_data.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run not found: %s", runName)
		}
		return nil, err
	}
	var data telemetry.RunData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse run data: %w", err)
	}
	return &data, nil
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(cfg.Storage.RunsDir)
	if err != nil {
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintln(os.Stdout, "No runs found")
			return nil
		}
		return err
	}

	var runs []telemetry.RunData
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := loadRunData(cfg.Storage.RunsDir, entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *data)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No runs found")
		return nil
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.Before(runs[j].StartTime) })

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tENDED\tOPS\tFAILED")
	for _, run := range runs {
		ended := "-"
		if run.EndTime != nil {
			ended = run.EndTime.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			run.RunName,
			run.StartTime.UTC().Format(time.RFC3339),
			ended,
			run.Statistics.TotalOperations,
			run.Statistics.FailedOperations,
		)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	data, err := loadRunData(cfg.Storage.RunsDir, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	_, _ = fmt.Fprintf(os.Stdout, "run_name=%s\n", data.RunName)
	_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", data.StartTime.UTC().Format(time.RFC3339))
	if data.EndTime != nil {
		_, _ = fmt.Fprintf(os.Stdout, "ended_at=%s\n", data.EndTime.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(os.Stdout, "operations=%d\n", data.Statistics.TotalOperations)
	_, _ = fmt.Fprintf(os.Stdout, "successful=%d\n", data.Statistics.SuccessfulOperations)
	_, _ = fmt.Fprintf(os.Stdout, "failed=%d\n", data.Statistics.FailedOperations)
	_, _ = fmt.Fprintf(os.Stdout, "login_attempts=%d\n", data.Statistics.LoginAttempts)
	for _, op := range data.Errors {
		_, _ = fmt.Fprintf(os.Stdout, "error: %s.%s: %s\n", op.Type, op.Name, op.Error)
	}
	return nil
}

func runRunsReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	runName := args[0]
	if runName != filepath.Base(runName) {
		return fmt.Errorf("invalid run name: %s", runName)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.Storage.ReportsDir, runName+"_report.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("report not found: %s", runName)
		}
		return err
	}
	_, _ = os.Stdout.Write(raw)
	return nil
}
