package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bitacora/internal/assistant"
	"github.com/starford/bitacora/internal/backup"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/pingate"
)

// Deps are the components the API is built from. Chat, Backup, Gate,
// Search and Events are optional.
type Deps struct {
	Service *Service
	Applier assistant.Applier
	Chat    *assistant.Chat
	Backup  *backup.Session
	// Gate enables PIN auth when non-nil.
	Gate   *pingate.Gate
	Search index.Searcher
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// OnRestore runs after a successful restore.
	OnRestore func()
}

var errMissingDeps = errors.New("api: Deps.Service and Deps.Applier are required")

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) (chi.Router, error) {
	if d.Applier == nil || d.Service == nil {
		return nil, errMissingDeps
	}
	h := NewHandler(d)

	r := chi.NewRouter()

	// PIN exchange is the only unauthenticated route.
	r.Post("/auth/pin", h.Unlock)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Gate))

		r.Post("/auth/lock", h.Lock)

		// Assistant replies and chat.
		r.Post("/assistant/reply", h.ApplyReply)
		r.Post("/assistant/chat", h.Chat)

		// Records.
		r.Get("/records/{collection}", h.ListRecords)
		r.Get("/records/{collection}/{id}", h.GetRecord)
		r.Patch("/records/{collection}/{id}", h.PatchRecord)
		r.Delete("/records/{collection}/{id}", h.DeleteRecord)

		r.Get("/warranties/expiring", h.ExpiringWarranties)
		r.Get("/bitacora/{date}", h.GetBitacora)
		r.Get("/search", h.Search)

		// Backup.
		r.Post("/backup/push", h.PushBackup)
		r.Post("/backup/restore", h.RestoreBackup)
		r.Post("/backup/refresh", h.RefreshBackup)

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r, nil
}
