package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/bitacora/internal/apperr"
)

// Defaults for the remote location of the snapshot.
const (
	DefaultFolder   = "Bitacora Backups"
	DefaultFileName = "bitacora-backup.json"
	DefaultTimeout  = 60 * time.Second
)

// Source is the record store as seen by the engine.
type Source interface {
	Version() int
	Dump(ctx context.Context) (map[string][]json.RawMessage, error)
	ReplaceAll(ctx context.Context, version int, data map[string][]json.RawMessage) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithFolder sets the remote folder name.
func WithFolder(name string) Option {
	return func(e *Engine) { e.folder = name }
}

// WithFileName sets the snapshot file name.
func WithFileName(name string) Option {
	return func(e *Engine) { e.file = name }
}

// WithTimeout bounds every remote round trip. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock overrides the time source used for LastSync.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine pushes and pulls the store snapshot.
type Engine struct {
	src     Source
	remote  Remote
	folder  string
	file    string
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewEngine creates an Engine syncing src with remote.
func NewEngine(src Source, remote Remote, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		remote:  remote,
		folder:  DefaultFolder,
		file:    DefaultFileName,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) checkToken(op, accessToken string) error {
	if accessToken == "" && needsToken(e.remote) {
		return &apperr.SyncError{Kind: apperr.SyncNotConnected, Op: op}
	}
	return nil
}

// Push uploads a snapshot of the whole store, overwriting the previous one.
func (e *Engine) Push(ctx context.Context, accessToken string) (*Snapshot, error) {
	if err := e.checkToken("push", accessToken); err != nil {
		return nil, err
	}
	data, err := e.src.Dump(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(e.src.Version(), data, e.now())
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("backup: encode snapshot: %w", err)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	folderID, err := e.remote.EnsureFolder(ctx, accessToken, e.folder)
	if err != nil {
		return nil, e.fail("push", err)
	}
	fileID, _, err := e.remote.Find(ctx, accessToken, folderID, e.file)
	if err != nil {
		return nil, e.fail("push", err)
	}
	if _, err := e.remote.Upload(ctx, accessToken, folderID, fileID, e.file, body); err != nil {
		return nil, e.fail("push", err)
	}
	e.log.Info("backup pushed",
		slog.String("file", e.file),
		slog.Int("records", snap.Records()),
		slog.Int("bytes", len(body)),
		slog.Bool("overwrote", fileID != ""))
	return snap, nil
}

// Pull downloads and verifies the snapshot. It returns apperr.ErrNoBackup
// when the remote holds none, and never creates the backup folder.
func (e *Engine) Pull(ctx context.Context, accessToken string) (*Snapshot, error) {
	if err := e.checkToken("pull", accessToken); err != nil {
		return nil, err
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()

	folderID, found, err := e.remote.FindFolder(ctx, accessToken, e.folder)
	if err != nil {
		return nil, e.fail("pull", err)
	}
	if !found {
		return nil, apperr.ErrNoBackup
	}
	fileID, found, err := e.remote.Find(ctx, accessToken, folderID, e.file)
	if err != nil {
		return nil, e.fail("pull", err)
	}
	if !found {
		return nil, apperr.ErrNoBackup
	}
	raw, err := e.remote.Download(ctx, accessToken, fileID)
	if err != nil {
		return nil, e.fail("pull", err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	if snap.Version > e.src.Version() {
		return nil, fmt.Errorf("backup: snapshot version %d, store version %d: %w",
			snap.Version, e.src.Version(), apperr.ErrIncompatibleVersion)
	}
	return snap, nil
}

// Restore pulls the snapshot and replaces the whole store with it. The
// store is only touched after a complete, verified download.
func (e *Engine) Restore(ctx context.Context, accessToken string) (*Snapshot, error) {
	snap, err := e.Pull(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if snap.Version < e.src.Version() {
		e.log.Info("migrating snapshot from an older schema version",
			slog.Int("snapshot_version", snap.Version),
			slog.Int("store_version", e.src.Version()))
	}
	if err := e.src.ReplaceAll(ctx, snap.Version, snap.Data); err != nil {
		return nil, err
	}
	e.log.Info("backup restored",
		slog.Int("records", snap.Records()),
		slog.Time("last_sync", snap.LastSync))
	return snap, nil
}

func (e *Engine) fail(op string, err error) error {
	err = classify(op, err)
	e.log.Error("backup failed", slog.String("op", op), slog.String("error", err.Error()))
	return err
}
