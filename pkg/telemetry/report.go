package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteReport renders a human-readable markdown summary of a run into
// <reportsDir>/<runName>_report.md and returns the report path.
func WriteReport(reportsDir string, data RunData) (string, error) {
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Run Report: %s\n\n", data.RunName)
	fmt.Fprintf(&b, "- Started: %s\n", data.StartTime.Format(time.RFC3339))
	if data.EndTime != nil {
		fmt.Fprintf(&b, "- Ended: %s\n", data.EndTime.Format(time.RFC3339))
		fmt.Fprintf(&b, "- Duration: %s\n", data.EndTime.Sub(data.StartTime).Round(time.Second))
	}
	b.WriteString("\n## Statistics\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total operations | %d |\n", data.Statistics.TotalOperations)
	fmt.Fprintf(&b, "| Successful | %d |\n", data.Statistics.SuccessfulOperations)
	fmt.Fprintf(&b, "| Failed | %d |\n", data.Statistics.FailedOperations)
	fmt.Fprintf(&b, "| Login attempts | %d |\n", data.Statistics.LoginAttempts)

	b.WriteString("\n## Operations\n\n")
	if len(data.Operations) == 0 {
		b.WriteString("_none_\n")
	}
	for _, op := range data.Operations {
		fmt.Fprintf(&b, "- `%s` %s.%s: %s\n", op.Timestamp.Format(time.RFC3339), op.Type, op.Name, op.Status)
	}

	if len(data.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, op := range data.Errors {
			fmt.Fprintf(&b, "- %s.%s: %s\n", op.Type, op.Name, op.Error)
		}
	}

	path := filepath.Join(reportsDir, data.RunName+"_report.md")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
