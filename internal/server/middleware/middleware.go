// Package middleware carries the HTTP middleware chain: request ids, panic
// recovery, and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/seralabs/telepilot/internal/errors"
)

// ErrorResponse is the envelope written by Recovery and friends.
type ErrorResponse = apperrors.HTTPErrorResponse

// RequestID attaches a request id to the context, honoring an incoming
// X-Request-Id header.
func RequestID(next http.Handler) http.Handler {
	return chimiddleware.RequestID(next)
}

// GetRequestID returns the request id for ctx, or "".
func GetRequestID(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// Recovery converts handler panics into a 500 JSON error response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				writeErrorResponse(w, apperrors.HTTPError{
					Code:      apperrors.CodeInternalError,
					Message:   fmt.Sprintf("panic: %v", p),
					RequestID: GetRequestID(r.Context()),
				}, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery, kept for handler chains that read
// better with this name.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// RequestLogger emits one structured log line per request. The observe
// callback, when non-nil, receives (method, path, status) for metrics.
func RequestLogger(log *zap.Logger, observe func(method, path, code string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if observe != nil {
				observe(r.Method, r.URL.Path, fmt.Sprintf("%d", status))
			}
			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", GetRequestID(r.Context())))
		})
	}
}

func writeErrorResponse(w http.ResponseWriter, httpErr apperrors.HTTPError, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: httpErr})
}
