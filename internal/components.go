package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/bitacora/internal/assistant"
	"github.com/starford/bitacora/internal/backup"
	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/pingate"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/sse"
	"github.com/starford/bitacora/internal/storage"
	"github.com/starford/bitacora/internal/store"
)

// NewLogger builds the structured JSON logger for cfg writing to w.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// Components are the wired domain objects shared by the server and the
// one-shot commands.
type Components struct {
	Config     *Config
	Log        *slog.Logger
	Store      *store.Store
	Broker     *sse.Broker
	Dispatcher *dispatch.Dispatcher
	Backup     *backup.Session
	Index      *index.DB
	// Follower keeps Index current; the caller runs it.
	Follower *index.Follower
	// Chat is nil when no assistant provider is configured.
	Chat *assistant.Chat
	// Gate is nil when auth is disabled.
	Gate *pingate.Gate
}

// Open opens the record store, migrating it to the latest schema, and
// wires every component around it.
func Open(ctx context.Context, cfg *Config, log *slog.Logger) (*Components, error) {
	s, err := store.Open(ctx, cfg.SQLite.Path, records.Migrations)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c := &Components{
		Config: cfg,
		Log:    log,
		Store:  s,
		Broker: sse.NewBroker(dashboardThrottle),
	}

	if c.Index, err = index.Open(cfg.SQLite.IndexPath); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Follower = index.NewFollower(c.Index, s, log)

	c.Dispatcher = dispatch.New(s,
		dispatch.WithLogger(log),
		dispatch.WithNotifier(c.publish),
	)

	if c.Backup, err = newBackupSession(cfg.Backup, s, log); err != nil {
		_ = c.Close()
		return nil, err
	}

	if cfg.Assistant.Enabled() {
		p, err := assistant.NewProvider(assistant.Config{
			Provider: cfg.Assistant.Provider,
			BaseURL:  cfg.Assistant.BaseURL,
			APIKey:   cfg.Assistant.APIKey,
			Model:    cfg.Assistant.Model,
			Timeout:  cfg.Assistant.Timeout,
		})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Chat = assistant.NewChat(p, c.Dispatcher, log)
	}

	if cfg.Auth.AuthEnabled() {
		c.Gate = pingate.New(cfg.Auth.PINHash, cfg.Auth.SessionTTL)
	}
	return c, nil
}

// publish forwards record changes to SSE subscribers and the search index.
func (c *Components) publish(ch dispatch.Change) {
	c.Follower.Notify(ch.Collection, ch.ID)
	c.Broker.PublishChange(string(ch.Kind), ch.Collection, ch.ID)
}

// restored announces that the whole store was replaced.
func (c *Components) restored() {
	c.Follower.Resync()
	c.Broker.PublishReplaced()
}

// Close releases the broker, the index and the store.
func (c *Components) Close() error {
	c.Broker.Close()
	if c.Index != nil {
		_ = c.Index.Close()
	}
	return c.Store.Close()
}

func newBackupSession(cfg BackupConfig, s *store.Store, log *slog.Logger) (*backup.Session, error) {
	var remote backup.Remote
	switch cfg.Provider {
	case BackupDrive:
		remote = backup.NewDrive()
	case BackupGCS:
		remote = backup.NewGCS(cfg.Bucket)
	case BackupFS:
		fs, err := storage.NewFS(cfg.FSPath)
		if err != nil {
			return nil, fmt.Errorf("init backup dir: %w", err)
		}
		remote = backup.NewDir(fs)
	default:
		return nil, errors.New("backup: unknown provider " + cfg.Provider)
	}

	engine := backup.NewEngine(s, remote,
		backup.WithFolder(cfg.FolderName),
		backup.WithFileName(cfg.FileName),
		backup.WithTimeout(cfg.Timeout),
		backup.WithLogger(log),
	)

	var creds *backup.Credentials
	if cfg.OAuth.Configured() {
		creds = backup.NewCredentials(backup.OAuthConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			RedirectURL:  cfg.OAuth.RedirectURL,
			Scopes:       cfg.Scopes(),
		}, nil)
	}
	return backup.NewSession(engine, creds, cfg.OAuth.RefreshToken), nil
}
