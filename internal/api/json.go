package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/bitacora/internal/apperr"
	"github.com/starford/bitacora/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	// Kind is set for backup failures: not_connected, revoked, expired, transient.
	Kind   string            `json:"kind,omitempty"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err onto a status code and logs anything unexpected.
func writeError(w http.ResponseWriter, op string, err error) {
	var (
		ve *apperr.ValidationError
		se *apperr.SyncError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: ve.Error(), Fields: ve.Fields})
	case errors.As(err, &se):
		status := http.StatusUnauthorized
		if se.Retryable() {
			status = http.StatusServiceUnavailable
		}
		slog.Warn(op+" failed", slog.String("kind", string(se.Kind)), slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "backup " + string(se.Kind), Kind: string(se.Kind), Detail: se.Detail})
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, store.ErrUnknownCollection), errors.Is(err, apperr.ErrNoBackup):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrIncompatibleVersion):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, store.ErrUndeclaredIndex):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
