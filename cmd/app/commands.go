package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/bitacora/internal"
	"github.com/starford/bitacora/internal/backup"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/mcpserver"
	"github.com/starford/bitacora/internal/pingate"
	pkgconfig "github.com/starford/bitacora/pkg/config"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API, SSE events and the inbox watcher",
			Action: serve,
		},
		{
			Name:  "apply",
			Usage: "Extract and save the commands in an assistant reply read from --file or stdin",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Reply text file (default stdin)"},
			},
			Action: apply,
		},
		{
			Name:   "migrate",
			Usage:  "Open the record store, migrate it and print the schema version",
			Action: migrate,
		},
		{
			Name:   "push",
			Usage:  "Upload a snapshot of the whole store to the backup remote",
			Action: push,
		},
		{
			Name:  "pull",
			Usage: "Download and verify the remote snapshot without touching the store",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the snapshot JSON to this file"},
			},
			Action: pull,
		},
		{
			Name:   "restore",
			Usage:  "Replace the whole store with the remote snapshot",
			Action: restore,
		},
		{
			Name:  "backup-login",
			Usage: "Print the OAuth consent URL, or exchange --code for a refresh token",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "code", Usage: "Authorization code from the consent redirect"},
				&cli.StringFlag{Name: "state", Value: "bitacora", Usage: "OAuth state value"},
			},
			Action: backupLogin,
		},
		{
			Name:   "mcp",
			Usage:  "Serve the MCP tools on stdin/stdout",
			Action: serveMCP,
		},
		{
			Name:      "hash-pin",
			Usage:     "Print the bcrypt hash of a PIN for auth.pin_hash",
			ArgsUsage: "<pin>",
			Action:    hashPIN,
		},
	}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// open loads the config and wires the components with logs on stderr, so
// stdout stays free for command output.
func open(ctx context.Context, cmd *cli.Command) (*internal.Components, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(ctx, cfg, internal.NewLogger(cfg, os.Stderr))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func apply(ctx context.Context, cmd *cli.Command) error {
	var (
		text []byte
		err  error
	)
	if path := cmd.String("file"); path != "" {
		text, err = os.ReadFile(path)
	} else {
		text, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	rep, applyErr := c.Dispatcher.ApplyText(ctx, string(text))
	if err := printJSON(os.Stdout, rep); err != nil {
		return err
	}
	if applyErr != nil {
		return fmt.Errorf("apply stopped after %d commands: %w", len(rep.Outcomes), applyErr)
	}
	return nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = fmt.Fprintf(os.Stdout, "schema version %d, collections: %s\n",
		c.Store.Version(), strings.Join(c.Store.Collections(), ", "))
	return err
}

type snapshotSummary struct {
	Version  int       `json:"version"`
	Records  int       `json:"records"`
	LastSync time.Time `json:"last_sync"`
	Checksum string    `json:"checksum"`
}

func summarize(s *backup.Snapshot) snapshotSummary {
	return snapshotSummary{Version: s.Version, Records: s.Records(), LastSync: s.LastSync, Checksum: s.Checksum}
}

func push(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	snap, err := c.Backup.Push(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, summarize(snap))
}

func pull(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	snap, err := c.Backup.Pull(ctx)
	if err != nil {
		return err
	}
	if out := cmd.String("out"); out != "" {
		body, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, body, 0o600); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	return printJSON(os.Stdout, summarize(snap))
}

func restore(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	snap, err := c.Backup.Restore(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, summarize(snap))
}

func backupLogin(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Backup.OAuth.ClientID == "" {
		return errors.New("backup.oauth.client_id is not configured")
	}
	creds := backup.NewCredentials(backup.OAuthConfig{
		ClientID:     cfg.Backup.OAuth.ClientID,
		ClientSecret: cfg.Backup.OAuth.ClientSecret,
		TokenURL:     cfg.Backup.OAuth.TokenURL,
		RedirectURL:  cfg.Backup.OAuth.RedirectURL,
		Scopes:       cfg.Backup.Scopes(),
	}, nil)

	code := cmd.String("code")
	if code == "" {
		_, err := fmt.Fprintln(os.Stdout, creds.AuthCodeURL(cmd.String("state")))
		return err
	}
	tok, err := creds.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		return errors.New("provider returned no refresh token; revoke access and retry the consent")
	}
	_, err = fmt.Fprintf(os.Stdout, "backup.oauth.refresh_token: %s\n", tok.RefreshToken)
	return err
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := index.Sync(ctx, c.Index, c.Store, c.Log); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.Follower.Loop(ctx)

	return mcpserver.New(c.Store, c.Dispatcher, mcpserver.WithSearcher(c.Index)).ServeStdio()
}

func hashPIN(_ context.Context, cmd *cli.Command) error {
	pin := cmd.Args().First()
	if pin == "" {
		return errors.New("usage: bitacora hash-pin <pin>")
	}
	hash, err := pingate.HashPIN(pin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, hash)
	return err
}
