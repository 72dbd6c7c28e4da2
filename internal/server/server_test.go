package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/seralabs/telepilot/internal/errors"
	"github.com/seralabs/telepilot/internal/server/handlers"
	"github.com/seralabs/telepilot/pkg/browser"
	"github.com/seralabs/telepilot/pkg/browser/browsertest"
	"github.com/seralabs/telepilot/pkg/jobs"
	"github.com/seralabs/telepilot/pkg/sessionstore"
)

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0)

	// POST to a GET-only endpoint should return 405
	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body apperrors.HTTPErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&body)
	require.NoError(t, err)

	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	// Initialize health manager for health endpoint tests
	handlers.InitHealthManager("test")

	srv := New("127.0.0.1", 0)

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/health/startup", http.StatusOK},
		{"GET", "/version", http.StatusOK},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, ep.want, rec.Code, "endpoint %s %s should return %d", ep.method, ep.path, ep.want)
		})
	}
}

func TestServer_APIRoutesAbsentWithoutRegistry(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newAPITestServer(t *testing.T, cfg browsertest.Config) (*Server, *browsertest.Fake) {
	t.Helper()

	fake := browsertest.New(cfg)
	sessions := sessionstore.NewStore(t.TempDir())
	registry := jobs.NewRegistry(
		func(browser.Options) browser.Browser { return fake },
		sessions,
		jobs.Options{RunsDir: t.TempDir(), ReportsDir: t.TempDir()},
		nil, nil,
	)
	t.Cleanup(registry.Close)

	srv := New("127.0.0.1", 0,
		WithRegistry(registry),
		WithRunsDirs(t.TempDir(), t.TempDir()),
	)
	return srv, fake
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func waitJobStatus(t *testing.T, h http.Handler, jobID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, body := doJSON(t, h, http.MethodGet, "/api/auth/login/"+jobID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		status, _ := body["status"].(string)
		if status == want {
			return body
		}
		if status == "failed" {
			t.Fatalf("job failed while waiting for %s: %v", want, body["error"])
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for status %s, job is %s", want, status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoginFlowOverHTTP(t *testing.T) {
	srv, fake := newAPITestServer(t, browsertest.Config{})
	h := srv.Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login",
		`{"phone_number": "+1 555 123 4567"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, "body: %v", body)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "+15551234567", body["phone"])

	waitJobStatus(t, h, jobID, "waiting_for_otp")

	rec, body = doJSON(t, h, http.MethodPost, "/api/auth/login/"+jobID+"/otp",
		`{"code": "12345"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["status"])
	assert.Nil(t, body["error"])

	// The saved session shows up in the inventory.
	rec, body = doJSON(t, h, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	assert.Equal(t, 1, fake.Closes())
}

func TestLoginFlowWithTwoFactorOverHTTP(t *testing.T) {
	srv, _ := newAPITestServer(t, browsertest.Config{TwoFactor: true, Password: "hunter2"})
	h := srv.Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login",
		`{"phone_number": "+15551234567"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := body["job_id"].(string)

	waitJobStatus(t, h, jobID, "waiting_for_otp")

	rec, body = doJSON(t, h, http.MethodPost, "/api/auth/login/"+jobID+"/otp",
		`{"code": "12345"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "waiting_for_2fa", body["status"])

	rec, body = doJSON(t, h, http.MethodPost, "/api/auth/login/"+jobID+"/2fa",
		`{"password": "hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["status"])
}

func TestLoginValidationErrors(t *testing.T) {
	srv, _ := newAPITestServer(t, browsertest.Config{})
	h := srv.Handler()

	t.Run("missing phone", func(t *testing.T) {
		rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	})

	t.Run("unknown job", func(t *testing.T) {
		rec, body := doJSON(t, h, http.MethodGet, "/api/auth/login/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "NOT_FOUND", errBody["code"])
	})
}

func TestSubmitInWrongStateReturnsConflict(t *testing.T) {
	srv, _ := newAPITestServer(t, browsertest.Config{})
	h := srv.Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login",
		`{"phone_number": "+15551234567"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := body["job_id"].(string)

	waitJobStatus(t, h, jobID, "waiting_for_otp")

	// 2FA submission while waiting for the OTP is a state conflict.
	rec, body = doJSON(t, h, http.MethodPost, "/api/auth/login/"+jobID+"/2fa",
		`{"password": "hunter2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_STATE", errBody["code"])
}

func TestSessionDeleteOverHTTP(t *testing.T) {
	srv, _ := newAPITestServer(t, browsertest.Config{})
	h := srv.Handler()

	t.Run("absent session is 404", func(t *testing.T) {
		rec, body := doJSON(t, h, http.MethodDelete, "/api/sessions/+15551234567", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "NOT_FOUND", errBody["code"])
	})
}
