package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/seralabs/telepilot/internal/errors"
	"github.com/seralabs/telepilot/pkg/sessionstore"
)

// SessionsHandler exposes the saved-session inventory.
type SessionsHandler struct {
	store *sessionstore.Store
}

func NewSessionsHandler(store *sessionstore.Store) *SessionsHandler {
	return &SessionsHandler{store: store}
}

type sessionListResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

type sessionDeleteResponse struct {
	Deleted bool   `json:"deleted"`
	Phone   string `json:"phone"`
}

// List returns the phone numbers with a saved session.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	phones, err := h.store.List()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if phones == nil {
		phones = []string{}
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: phones, Count: len(phones)})
}

// Delete removes the saved session for a phone number. Deleting a session
// that does not exist is a 404.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "phone")

	deleted, err := h.store.Delete(number)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if !deleted {
		apperrors.WriteError(w, r, http.StatusNotFound,
			apperrors.CodeNotFound, "no saved session for this phone number", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionDeleteResponse{Deleted: true, Phone: number})
}
