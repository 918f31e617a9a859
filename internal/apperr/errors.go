// Package apperr defines the error taxonomy shared by the store, the
// command pipeline, and the backup engine.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNoBackup            = errors.New("no backup found")
	ErrIncompatibleVersion = errors.New("store version is newer than supported")
)

// ValidationError reports an incomplete or malformed command payload.
// Fields maps JSON field names to the reason each one failed.
type ValidationError struct {
	Tag    string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Missing() {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return fmt.Sprintf("%s: invalid payload: %s", e.Tag, strings.Join(parts, "; "))
}

// Missing returns the failing field names in sorted order.
func (e *ValidationError) Missing() []string {
	out := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ExtractionError is scoped to a single marker whose payload could not be parsed.
type ExtractionError struct {
	Tag    string
	Offset int
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the local record store.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SyncKind classifies a backup/auth failure by the action it requires.
type SyncKind string

const (
	// SyncNotConnected means no credential is configured.
	SyncNotConnected SyncKind = "not_connected"
	// SyncRevoked means the provider rejected the refresh credential.
	SyncRevoked SyncKind = "revoked"
	// SyncExpired means the access credential was rejected; refresh and retry.
	SyncExpired SyncKind = "expired"
	// SyncTransient covers network failures and timeouts.
	SyncTransient SyncKind = "transient"
)

// SyncError is returned by push, pull, and token operations.
// Detail carries the provider's error payload verbatim when there is one.
type SyncError struct {
	Kind   SyncKind
	Op     string
	Detail string
	Err    error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("sync: %s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

// Retryable reports whether the operation may be retried without user action.
func (e *SyncError) Retryable() bool {
	return e.Kind == SyncTransient
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// SyncKindOf returns the SyncKind of err, or "" when err is not a SyncError.
func SyncKindOf(err error) SyncKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
