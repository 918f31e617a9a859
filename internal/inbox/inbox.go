// Package inbox applies assistant replies dropped as text files into a
// watched folder. Each file is applied once, archived under processed/
// together with a JSON report, and never applied again even if the same
// content is dropped a second time.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/bitacora/internal/checksum"
	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/storage"
)

const (
	// ProcessedDir holds archived sources and their reports.
	ProcessedDir = "processed"

	sourceSuffix = ".txt"
	resultSuffix = ".result.json"
)

// Applier applies the commands in a reply.
type Applier interface {
	ApplyText(ctx context.Context, text string) (dispatch.Report, error)
}

// Result is written next to each archived source.
type Result struct {
	Source      string           `json:"source"`
	Archived    string           `json:"archived"`
	Checksum    string           `json:"checksum"`
	ProcessedAt time.Time        `json:"processed_at"`
	DuplicateOf string           `json:"duplicate_of,omitempty"`
	Report      *dispatch.Report `json:"report,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Inbox) { in.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(in *Inbox) { in.now = now }
}

// WithSettle sets how long the watcher waits after the last file event
// before scanning, so half-written files are not picked up.
func WithSettle(d time.Duration) Option {
	return func(in *Inbox) { in.settle = d }
}

// Inbox processes reply files found at the root of files.
type Inbox struct {
	files  storage.Provider
	apply  Applier
	log    *slog.Logger
	now    func() time.Time
	settle time.Duration

	mu     sync.Mutex
	seen   map[string]string // checksum -> archived path
	loaded bool
}

// New creates an Inbox and makes sure the processed/ folder exists.
func New(files storage.Provider, a Applier, opts ...Option) (*Inbox, error) {
	in := &Inbox{
		files:  files,
		apply:  a,
		log:    slog.Default(),
		now:    time.Now,
		settle: 200 * time.Millisecond,
		seen:   map[string]string{},
	}
	for _, o := range opts {
		o(in)
	}
	if err := files.Mkdir(ProcessedDir); err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	return in, nil
}

// Scan processes every pending file, oldest first. A failing file is
// logged and left for the next scan; only a cancelled context stops it.
func (in *Inbox) Scan(ctx context.Context) ([]Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.loaded {
		if err := in.loadSeen(); err != nil {
			return nil, err
		}
		in.loaded = true
	}

	pending, err := in.files.List("", sourceSuffix)
	if err != nil {
		return nil, fmt.Errorf("inbox: scan: %w", err)
	}
	var out []Result
	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := in.process(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			in.log.Warn("inbox: process failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (in *Inbox) process(ctx context.Context, f storage.FileInfo) (Result, error) {
	data, err := in.files.Read(f.Path)
	if err != nil {
		return Result{}, err
	}
	sum := checksum.Sum(data)
	stem := strings.TrimSuffix(path.Base(f.Path), sourceSuffix)
	archived := path.Join(ProcessedDir, stem+"-"+uuid.NewString()[:8]+sourceSuffix)

	res := Result{
		Source:      f.Path,
		Archived:    archived,
		Checksum:    sum,
		ProcessedAt: in.now().UTC(),
	}

	if prev, ok := in.seen[sum]; ok {
		res.DuplicateOf = prev
		in.log.Info("inbox: duplicate skipped", slog.String("path", f.Path), slog.String("duplicate_of", prev))
	} else {
		rep, err := in.apply.ApplyText(ctx, string(data))
		if err != nil && errors.Is(err, ctx.Err()) {
			return Result{}, err
		}
		res.Report = &rep
		if err != nil {
			res.Error = err.Error()
		}
		in.log.Info("inbox: applied",
			slog.String("path", f.Path),
			slog.Int("commands", len(rep.Outcomes)),
			slog.Int("applied", rep.Applied()))
	}

	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return Result{}, err
	}
	if err := in.files.Write(strings.TrimSuffix(archived, sourceSuffix)+resultSuffix, body); err != nil {
		return Result{}, err
	}
	if err := in.files.Move(f.Path, archived); err != nil {
		return Result{}, err
	}
	if res.DuplicateOf == "" {
		in.seen[sum] = archived
	}
	return res, nil
}

// loadSeen rebuilds the checksum set from reports already in processed/.
func (in *Inbox) loadSeen() error {
	reports, err := in.files.List(ProcessedDir, resultSuffix)
	if err != nil {
		return fmt.Errorf("inbox: load processed: %w", err)
	}
	for _, r := range reports {
		data, err := in.files.Read(r.Path)
		if err != nil {
			return fmt.Errorf("inbox: load processed: %w", err)
		}
		var res Result
		if err := json.Unmarshal(data, &res); err != nil {
			in.log.Warn("inbox: unreadable report", slog.String("path", r.Path), slog.String("error", err.Error()))
			continue
		}
		if res.DuplicateOf == "" && res.Checksum != "" {
			in.seen[res.Checksum] = res.Archived
		}
	}
	return nil
}
