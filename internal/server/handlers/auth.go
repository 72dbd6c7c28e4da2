package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/seralabs/telepilot/internal/errors"
	"github.com/seralabs/telepilot/pkg/jobs"
)

// AuthHandler exposes the multi-step login flow over HTTP. Each endpoint is
// one client round-trip of the underlying job.
type AuthHandler struct {
	registry *jobs.Registry
}

func NewAuthHandler(registry *jobs.Registry) *AuthHandler {
	return &AuthHandler{registry: registry}
}

type startLoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Force       bool   `json:"force"`
	Headless    *bool  `json:"headless,omitempty"`
	Proxy       string `json:"proxy,omitempty"`
	RunLabel    string `json:"run_label,omitempty"`
}

type submitOTPRequest struct {
	Code string `json:"code"`
}

type submit2FARequest struct {
	Password string `json:"password"`
}

// StartLogin creates a login job and returns 202 with its initial snapshot.
// The job advances in the background; clients poll JobStatus.
func (h *AuthHandler) StartLogin(w http.ResponseWriter, r *http.Request) {
	var req startLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "phone_number is required",
			map[string]any{"field": "phone_number"})
		return
	}

	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}

	job, err := h.registry.CreateLoginJob(jobs.CreateParams{
		Phone:    req.PhoneNumber,
		Force:    req.Force,
		Headless: headless,
		Proxy:    req.Proxy,
		RunLabel: req.RunLabel,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// JobStatus returns the current snapshot of a login job.
func (h *AuthHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.registry.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// SubmitOTP resumes a job waiting for its one-time code. The call blocks
// until the browser has consumed the code and the job settled into its next
// state.
func (h *AuthHandler) SubmitOTP(w http.ResponseWriter, r *http.Request) {
	var req submitOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "code is required",
			map[string]any{"field": "code"})
		return
	}

	job, err := h.registry.SubmitOTP(r.Context(), chi.URLParam(r, "job_id"), req.Code)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Submit2FA resumes a job waiting for its cloud password.
func (h *AuthHandler) Submit2FA(w http.ResponseWriter, r *http.Request) {
	var req submit2FARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "invalid request body", nil)
		return
	}
	if req.Password == "" {
		apperrors.WriteError(w, r, http.StatusBadRequest,
			apperrors.CodeValidationError, "password is required",
			map[string]any{"field": "password"})
		return
	}

	job, err := h.registry.SubmitTwoFactor(r.Context(), chi.URLParam(r, "job_id"), req.Password)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
