package api

import (
	"encoding/json"
	"time"

	"github.com/starford/bitacora/internal/assistant"
	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/index"
)

// UnlockRequest is the request body for POST /auth/pin.
type UnlockRequest struct {
	PIN string `json:"pin" example:"4321" validate:"required"`
}

// UnlockResponse carries the session token.
type UnlockResponse struct {
	Token     string    `json:"token" validate:"required"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

// ApplyRequest is the request body for POST /assistant/reply.
type ApplyRequest struct {
	Text string `json:"text" example:"SAVE_NOTE:{\"content\":\"llamar a Ana\"}" validate:"required"`
}

// Report is the dispatch report (aliased from the domain layer).
type Report = dispatch.Report

// ChatImage is an image attached to a chat turn.
type ChatImage struct {
	MediaType string `json:"media_type" example:"image/jpeg"`
	Data      string `json:"data" validate:"required"`
}

// ChatTurn is one earlier message of the conversation.
type ChatTurn struct {
	Role    assistant.Role `json:"role" example:"user"`
	Content string         `json:"content"`
}

// ChatRequest is the request body for POST /assistant/chat.
type ChatRequest struct {
	Message string      `json:"message" validate:"required"`
	Images  []ChatImage `json:"images,omitempty"`
	History []ChatTurn  `json:"history,omitempty"`
}

// ChatResponse is the model's reply and what became of its commands.
type ChatResponse struct {
	Raw    string `json:"raw"`
	Report Report `json:"report"`
}

// RecordListResponse wraps a collection listing.
type RecordListResponse struct {
	Records []json.RawMessage `json:"records" validate:"required"`
	Total   int               `json:"total" example:"42" validate:"required"`
}

// WarrantyListResponse wraps the expiring-warranties list.
type WarrantyListResponse struct {
	Warranties []ExpiringWarranty `json:"warranties" validate:"required"`
}

// BackupResponse describes the snapshot that was pushed or restored.
type BackupResponse struct {
	Version  int       `json:"version"`
	Records  int       `json:"records"`
	LastSync time.Time `json:"last_sync"`
	Checksum string    `json:"checksum"`
}

// RefreshResponse reports a successful token refresh.
type RefreshResponse struct {
	Connected bool `json:"connected"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}
