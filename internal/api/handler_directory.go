package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"aiotts_gateway/internal/directory"

	"github.com/go-chi/chi/v5"
)

// Directory is the lookup surface of *directory.Store.
type Directory interface {
	LabelByTrackingID(ctx context.Context, trackingID string) (*directory.Label, error)
	UUIDExists(ctx context.Context, value string) (bool, error)
	PasswordStatus(ctx context.Context, email string) (string, error)
}

// DirectoryHandler serves the personnel, uuid and label lookups. A nil
// directory answers 503.
type DirectoryHandler struct {
	dir Directory
}

func NewDirectoryHandler(dir Directory) *DirectoryHandler {
	return &DirectoryHandler{dir: dir}
}

func (h *DirectoryHandler) available(w http.ResponseWriter) bool {
	if h.dir == nil {
		writeError(w, http.StatusServiceUnavailable, "database is not configured")
		return false
	}
	return true
}

func (h *DirectoryHandler) SearchUUID(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	value := r.URL.Query().Get("value")
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	found, err := h.dir.UUIDExists(r.Context(), value)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "found"})
}

func (h *DirectoryHandler) PasswordStatus(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	status, err := h.dir.PasswordStatus(r.Context(), email)
	if errors.Is(err, directory.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "email_not_found"})
		return
	}
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *DirectoryHandler) SearchLabel(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	trackingID := chi.URLParam(r, "tracking_id")

	label, err := h.dir.LabelByTrackingID(r.Context(), trackingID)
	if errors.Is(err, directory.ErrNotFound) {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("Label with tracking_id %s not found", trackingID))
		return
	}
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: label.Data})
}
