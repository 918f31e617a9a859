package inbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch scans once, then watches dir (the root of the Inbox's files) and
// rescans shortly after files land in it, until ctx is cancelled.
// processed/ is not watched.
func (in *Inbox) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	in.log.Info("inbox: watching", slog.String("dir", dir))

	if _, err := in.Scan(ctx); err != nil && ctx.Err() == nil {
		in.log.Error("inbox: initial scan failed", slog.String("error", err.Error()))
	}

	// scanTimer debounces bursts of writes into a single scan.
	var scanTimer *time.Timer
	var scanCh <-chan time.Time

	scheduleScan := func() {
		if scanTimer == nil {
			scanTimer = time.NewTimer(in.settle)
			scanCh = scanTimer.C
		} else {
			scanTimer.Reset(in.settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if scanTimer != nil {
				scanTimer.Stop()
			}
			in.log.Info("inbox: stopped")
			return nil

		case <-scanCh:
			if _, err := in.Scan(ctx); err != nil && ctx.Err() == nil {
				in.log.Error("inbox: scan failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(dir) || !strings.HasSuffix(ev.Name, sourceSuffix) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				in.log.Debug("inbox: file event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				scheduleScan()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.log.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
