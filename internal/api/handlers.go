package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bitacora/internal/assistant"
	"github.com/starford/bitacora/internal/backup"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/pingate"
)

const maxBodyBytes = 20 << 20 // receipts travel inline as base64

// Handler holds API route handlers.
type Handler struct {
	svc       *Service
	applier   assistant.Applier
	chat      *assistant.Chat
	backup    *backup.Session
	gate      *pingate.Gate
	search    index.Searcher
	onRestore func()
}

// NewHandler creates a new Handler from d.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		svc:       d.Service,
		applier:   d.Applier,
		chat:      d.Chat,
		backup:    d.Backup,
		gate:      d.Gate,
		search:    d.Search,
		onRestore: d.OnRestore,
	}
	if h.onRestore == nil {
		h.onRestore = func() {}
	}
	return h
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return 0, false
	}
	return id, true
}

// Unlock handles POST /auth/pin.
//
//	@Summary		Exchange the PIN for a session token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UnlockRequest	true	"PIN"
//	@Success		200		{object}	UnlockResponse
//	@Failure		401		{object}	errResponse
//	@Router			/auth/pin [post]
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeJSON(w, http.StatusNotFound, errorBody("pin gate disabled"))
		return
	}
	var req UnlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, exp, err := h.gate.Unlock(req.PIN)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("wrong pin"))
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{Token: token, ExpiresAt: exp})
}

// Lock handles POST /auth/lock.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if h.gate != nil {
		h.gate.Lock(bearer(r))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyReply handles POST /assistant/reply.
//
//	@Summary		Extract and apply the commands in an assistant reply
//	@Tags			assistant
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ApplyRequest	true	"Reply text"
//	@Success		200		{object}	Report
//	@Security		BearerAuth
//	@Router			/assistant/reply [post]
func (h *Handler) ApplyReply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rep, err := h.applier.ApplyText(r.Context(), req.Text)
	if err != nil {
		writeError(w, "apply reply", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Chat handles POST /assistant/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("assistant not configured"))
		return
	}
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" && len(req.Images) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("message is required"))
		return
	}

	history := make([]assistant.Message, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, assistant.Message{Role: t.Role, Content: t.Content})
	}
	msg := assistant.Message{Role: assistant.RoleUser, Content: req.Message}
	for _, img := range req.Images {
		mt := img.MediaType
		if mt == "" {
			mt = "image/jpeg"
		}
		msg.Images = append(msg.Images, assistant.Image{MediaType: mt, Data: img.Data})
	}

	reply, err := h.chat.Send(r.Context(), history, msg)
	if err != nil && reply.Raw == "" {
		writeJSON(w, http.StatusBadGateway, errorBody("assistant unavailable"))
		return
	}
	if err != nil {
		writeError(w, "chat apply", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Raw: reply.Raw, Report: reply.Report})
}

// ListRecords handles GET /records/{collection}.
//
//	@Summary		List the records of a collection
//	@Tags			records
//	@Produce		json
//	@Param			collection	path		string	true	"Collection"
//	@Param			index		query		string	false	"Declared index field"
//	@Param			eq			query		string	false	"Exact match on index"
//	@Param			from		query		string	false	"Inclusive lower bound on index"
//	@Param			to			query		string	false	"Inclusive upper bound on index"
//	@Param			limit		query		int		false	"Max records"
//	@Param			desc		query		bool	false	"Descending order"
//	@Success		200			{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records/{collection} [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	desc, _ := strconv.ParseBool(q.Get("desc"))
	p := ListParams{
		Index: q.Get("index"),
		Eq:    q.Get("eq"),
		From:  q.Get("from"),
		To:    q.Get("to"),
		Desc:  desc,
		Limit: limit,
	}
	if p.Index == "" && (p.Eq != "" || p.From != "" || p.To != "") {
		writeJSON(w, http.StatusBadRequest, errorBody("index is required with eq, from or to"))
		return
	}
	if p.Eq != "" && (p.From != "" || p.To != "") {
		writeJSON(w, http.StatusBadRequest, errorBody("eq cannot be combined with from/to"))
		return
	}

	docs, err := h.svc.List(r.Context(), chi.URLParam(r, "collection"), p)
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: docs, Total: len(docs)})
}

// GetRecord handles GET /records/{collection}/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "collection"), id)
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PatchRecord handles PATCH /records/{collection}/{id}. The body is a JSON
// merge patch; null removes a field.
func (h *Handler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if !decodeBody(w, r, &fields) {
		return
	}
	if fields == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("body must be a JSON object"))
		return
	}
	doc, err := h.svc.Patch(r.Context(), chi.URLParam(r, "collection"), id, fields)
	if err != nil {
		writeError(w, "patch record", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteRecord handles DELETE /records/{collection}/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "collection"), id); err != nil {
		writeError(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExpiringWarranties handles GET /warranties/expiring.
//
//	@Summary		Active warranties expiring soon
//	@Tags			warranties
//	@Produce		json
//	@Param			days	query		int	false	"Window in days (default 30)"
//	@Success		200		{object}	WarrantyListResponse
//	@Security		BearerAuth
//	@Router			/warranties/expiring [get]
func (h *Handler) ExpiringWarranties(w http.ResponseWriter, r *http.Request) {
	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("days must be a non-negative integer"))
			return
		}
		days = n
	}
	list, err := h.svc.ExpiringWarranties(r.Context(), days)
	if err != nil {
		writeError(w, "expiring warranties", err)
		return
	}
	writeJSON(w, http.StatusOK, WarrantyListResponse{Warranties: list})
}

// GetBitacora handles GET /bitacora/{date}.
func (h *Handler) GetBitacora(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
		return
	}
	entry, ok, err := h.svc.Bitacora(r.Context(), date)
	if err != nil {
		writeError(w, "get bitacora", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Search handles GET /search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search not configured"))
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.search.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func snapshotBody(s *backup.Snapshot) BackupResponse {
	return BackupResponse{Version: s.Version, Records: s.Records(), LastSync: s.LastSync, Checksum: s.Checksum}
}

func (h *Handler) backupReady(w http.ResponseWriter) bool {
	if h.backup == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("backup not configured"))
		return false
	}
	return true
}

// PushBackup handles POST /backup/push.
//
//	@Summary		Upload a snapshot of every record
//	@Tags			backup
//	@Produce		json
//	@Success		200	{object}	BackupResponse
//	@Failure		401	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backup/push [post]
func (h *Handler) PushBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backupReady(w) {
		return
	}
	snap, err := h.backup.Push(r.Context())
	if err != nil {
		writeError(w, "backup push", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotBody(snap))
}

// RestoreBackup handles POST /backup/restore.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backupReady(w) {
		return
	}
	snap, err := h.backup.Restore(r.Context())
	if err != nil {
		writeError(w, "backup restore", err)
		return
	}
	h.onRestore()
	writeJSON(w, http.StatusOK, snapshotBody(snap))
}

// RefreshBackup handles POST /backup/refresh.
func (h *Handler) RefreshBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backupReady(w) {
		return
	}
	if _, err := h.backup.Refresh(r.Context()); err != nil {
		writeError(w, "backup refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Connected: true})
}
