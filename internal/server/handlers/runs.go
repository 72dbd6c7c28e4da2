package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/seralabs/telepilot/internal/errors"
	"github.com/seralabs/telepilot/pkg/telemetry"
)

// RunsHandler serves recorded run data and the rendered reports.
type RunsHandler struct {
	runsDir    string
	reportsDir string
}

func NewRunsHandler(runsDir, reportsDir string) *RunsHandler {
	return &RunsHandler{runsDir: runsDir, reportsDir: reportsDir}
}

type runListResponse struct {
	Runs  []string `json:"runs"`
	Count int      `json:"count"`
}

// List returns run names, newest-sorting last lexically (run labels embed
// their timestamps).
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, runListResponse{Runs: []string{}})
			return
		}
		respondWithError(w, r, err)
		return
	}

	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(h.runsDir, entry.Name(), "run_data.json")); err != nil {
			continue
		}
		runs = append(runs, entry.Name())
	}
	sort.Strings(runs)

	writeJSON(w, http.StatusOK, runListResponse{Runs: runs, Count: len(runs)})
}

// Show returns the recorded run data for one run.
func (h *RunsHandler) Show(w http.ResponseWriter, r *http.Request) {
	name, ok := h.safeRunName(w, r)
	if !ok {
		return
	}

	raw, err := os.ReadFile(filepath.Join(h.runsDir, name, "run_data.json"))
	if err != nil {
		if os.IsNotExist(err) {
			apperrors.WriteError(w, r, http.StatusNotFound,
				apperrors.CodeNotFound, "run not found", nil)
			return
		}
		respondWithError(w, r, err)
		return
	}

	var data telemetry.RunData
	if err := json.Unmarshal(raw, &data); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Report returns the rendered markdown report for one run.
func (h *RunsHandler) Report(w http.ResponseWriter, r *http.Request) {
	name, ok := h.safeRunName(w, r)
	if !ok {
		return
	}

	raw, err := os.ReadFile(filepath.Join(h.reportsDir, name+"_report.md"))
	if err != nil {
		if os.IsNotExist(err) {
			apperrors.WriteError(w, r, http.StatusNotFound,
				apperrors.CodeNotFound, "report not found", nil)
			return
		}
		respondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// safeRunName rejects run names that could escape the runs directory.
func (h *RunsHandler) safeRunName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "run_name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "invalid run name", nil)
		return "", false
	}
	return name, true
}
