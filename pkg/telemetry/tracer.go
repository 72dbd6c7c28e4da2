// Package telemetry records per-run operation logs and renders run reports.
//
// A Tracer is bound to exactly one run (one login job or one CLI run) and is
// passed explicitly to the components that need it. There is deliberately no
// process-global tracer: concurrent jobs each own their own instance.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operation statuses recorded by LogOperation.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Operation is one recorded step of a run.
type Operation struct {
	ID        int            `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Statistics aggregates operation outcomes for a run.
type Statistics struct {
	TotalOperations      int `json:"total_operations"`
	SuccessfulOperations int `json:"successful_operations"`
	FailedOperations     int `json:"failed_operations"`
	LoginAttempts        int `json:"login_attempts"`
}

// RunData is the persistent record written to run_data.json.
type RunData struct {
	RunID      string      `json:"run_id"`
	RunName    string      `json:"run_name"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	Statistics Statistics  `json:"statistics"`
	Operations []Operation `json:"operations"`
	Errors     []Operation `json:"errors"`
}

// Tracer tracks operations for a single run and persists them under
// <runsDir>/<runName>/run_data.json.
type Tracer struct {
	mu sync.Mutex

	runName   string
	runsDir   string
	startTime time.Time
	endTime   *time.Time

	operations []Operation
	errors     []Operation
	stats      Statistics
	nextOpID   int
}

// NewTracer creates a tracer for a run. When runName is empty a
// timestamp-derived name is generated.
func NewTracer(runsDir, runName string) *Tracer {
	if runName == "" {
		runName = "run-" + time.Now().UTC().Format("20060102_150405")
	}
	return &Tracer{
		runName:   runName,
		runsDir:   runsDir,
		startTime: time.Now().UTC(),
		nextOpID:  1,
	}
}

func (t *Tracer) RunName() string {
	return t.runName
}

// RunDir returns (creating if needed) the directory for this run's data.
func (t *Tracer) RunDir() (string, error) {
	dir := filepath.Join(t.runsDir, t.runName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// LogOperation records one operation and returns its id.
func (t *Tracer) LogOperation(opType, name, status string, details map[string]any) int {
	return t.log(opType, name, status, details, "")
}

// LogError records a failed operation.
func (t *Tracer) LogError(opType, name, errMsg string) {
	t.log(opType, name, StatusFailed, nil, errMsg)
}

func (t *Tracer) log(opType, name, status string, details map[string]any, errMsg string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	op := Operation{
		ID:        t.nextOpID,
		Type:      opType,
		Name:      name,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Details:   details,
		Error:     errMsg,
	}
	t.nextOpID++
	t.operations = append(t.operations, op)

	t.stats.TotalOperations++
	switch status {
	case StatusCompleted:
		t.stats.SuccessfulOperations++
		if opType == "login" {
			t.stats.LoginAttempts++
		}
	case StatusFailed:
		t.stats.FailedOperations++
		t.errors = append(t.errors, op)
	}

	return op.ID
}

// Snapshot returns a copy of the run data accumulated so far.
func (t *Tracer) Snapshot() RunData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracer) snapshotLocked() RunData {
	ops := make([]Operation, len(t.operations))
	copy(ops, t.operations)
	errs := make([]Operation, len(t.errors))
	copy(errs, t.errors)

	return RunData{
		RunID:      t.runName,
		RunName:    t.runName,
		StartTime:  t.startTime,
		EndTime:    t.endTime,
		Statistics: t.stats,
		Operations: ops,
		Errors:     errs,
	}
}

// Finish stamps the end time and persists run_data.json. Safe to call once;
// later calls overwrite with the same end time.
func (t *Tracer) Finish() error {
	t.mu.Lock()
	if t.endTime == nil {
		now := time.Now().UTC()
		t.endTime = &now
	}
	data := t.snapshotLocked()
	t.mu.Unlock()

	return t.save(data)
}

func (t *Tracer) save(data RunData) error {
	dir, err := t.RunDir()
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run data: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "run_data.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write run data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close run data: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, "run_data.json")); err != nil {
		return fmt.Errorf("rename run data: %w", err)
	}
	return nil
}
