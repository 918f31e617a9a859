package index

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/bitacora/internal/apperr"
)

const defaultSettle = 150 * time.Millisecond

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

// Follower keeps the index current from record change notifications.
// Notify never blocks; changes are collected and applied in batches by Run.
type Follower struct {
	db     *DB
	src    Source
	log    *slog.Logger
	settle time.Duration

	mu      sync.Mutex
	pending map[key]struct{}
	resync  bool
	wake    chan struct{}
}

// NewFollower creates a Follower indexing src into db.
func NewFollower(db *DB, src Source, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		db:      db,
		src:     src,
		log:     logger,
		settle:  defaultSettle,
		pending: make(map[key]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Notify queues one record for reindexing.
func (f *Follower) Notify(collection string, id int64) {
	f.mu.Lock()
	f.pending[key{collection, id}] = struct{}{}
	f.mu.Unlock()
	f.poke()
}

// Resync queues a full rebuild, used after the whole store was replaced.
func (f *Follower) Resync() {
	f.mu.Lock()
	f.resync = true
	clear(f.pending)
	f.mu.Unlock()
	f.poke()
}

func (f *Follower) poke() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Run syncs the whole index once, then applies queued changes until ctx is
// cancelled.
func (f *Follower) Run(ctx context.Context) error {
	if err := Sync(ctx, f.db, f.src, f.log); err != nil {
		f.log.Error("index: initial sync failed", slog.String("error", err.Error()))
	}
	f.Loop(ctx)
	return nil
}

// Loop applies queued changes until ctx is cancelled. Bursts of changes
// within the settle window are applied together.
func (f *Follower) Loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.settle):
		}
		f.flush(ctx)
	}
}

func (f *Follower) flush(ctx context.Context) {
	f.mu.Lock()
	resync := f.resync
	batch := f.pending
	f.resync = false
	f.pending = make(map[key]struct{})
	f.mu.Unlock()

	if resync {
		if err := Sync(ctx, f.db, f.src, f.log); err != nil {
			f.log.Error("index: resync failed", slog.String("error", err.Error()))
		}
		return
	}
	for k := range batch {
		if err := Reindex(ctx, f.db, f.src, k.collection, k.id); err != nil {
			f.log.Warn("index: reindex failed",
				slog.String("collection", k.collection),
				slog.Int64("id", k.id),
				slog.String("error", err.Error()))
		}
	}
}
