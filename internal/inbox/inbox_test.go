package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/storage"
	"github.com/starford/bitacora/internal/store"
	"github.com/starford/bitacora/internal/testutil"
)

const reply = `SAVE_NOTE:{"content":"Revisar compresor de Ana"}
Anotado.`

type env struct {
	dir   string
	store *store.Store
	inbox *Inbox
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := testutil.TestStore(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	in, err := New(files, dispatch.New(s, dispatch.WithLogger(logger)),
		WithLogger(logger), WithSettle(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	return env{dir: dir, store: s, inbox: in}
}

func (e env) notes(t *testing.T) int {
	t.Helper()
	n, err := e.store.Count(context.Background(), records.Notes, store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func drop(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_AppliesAndArchives(t *testing.T) {
	e := newEnv(t)
	drop(t, e.dir, "reply.txt", reply)
	drop(t, e.dir, "ignored.md", reply)

	results, err := e.inbox.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	res := results[0]
	if res.Report == nil || res.Report.Applied() != 1 || res.Report.Message != "Anotado." {
		t.Errorf("report = %+v", res.Report)
	}
	if e.notes(t) != 1 {
		t.Errorf("notes = %d, want 1", e.notes(t))
	}

	if _, err := os.Stat(filepath.Join(e.dir, "reply.txt")); !os.IsNotExist(err) {
		t.Error("source should have been moved")
	}
	if !strings.HasPrefix(res.Archived, "processed/reply-") {
		t.Errorf("archived = %q", res.Archived)
	}
	data, err := os.ReadFile(filepath.Join(e.dir, strings.TrimSuffix(res.Archived, ".txt")+".result.json"))
	if err != nil {
		t.Fatal(err)
	}
	var saved Result
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Checksum != res.Checksum || saved.Source != "reply.txt" {
		t.Errorf("saved result = %+v", saved)
	}
	if !strings.Contains(string(data), `"collection": "notes"`) {
		t.Errorf("report should carry outcomes: %s", data)
	}
}

func TestScan_SkipsDuplicates(t *testing.T) {
	e := newEnv(t)
	drop(t, e.dir, "a.txt", reply)
	if _, err := e.inbox.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	drop(t, e.dir, "b.txt", reply)
	results, err := e.inbox.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DuplicateOf == "" || results[0].Report != nil {
		t.Errorf("results = %+v", results)
	}
	if e.notes(t) != 1 {
		t.Errorf("notes = %d, want 1", e.notes(t))
	}
}

func TestScan_DuplicatesSurviveRestart(t *testing.T) {
	e := newEnv(t)
	drop(t, e.dir, "a.txt", reply)
	if _, err := e.inbox.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	files, _ := storage.NewFS(e.dir)
	again, err := New(files, dispatch.New(e.store))
	if err != nil {
		t.Fatal(err)
	}
	drop(t, e.dir, "again.txt", reply)
	results, err := again.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DuplicateOf == "" {
		t.Errorf("results = %+v", results)
	}
	if e.notes(t) != 1 {
		t.Errorf("notes = %d, want 1", e.notes(t))
	}
}

func TestScan_RejectedCommandsStillArchived(t *testing.T) {
	e := newEnv(t)
	drop(t, e.dir, "bad.txt", `SAVE_WARRANTY:{"equipment_type":"minisplit","client_name":"Ana","warranty_months":12}`)

	results, err := e.inbox.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Report.Applied() != 0 {
		t.Fatalf("results = %+v", results)
	}
	body, _ := json.Marshal(results[0].Report)
	if !strings.Contains(string(body), `"vendor"`) {
		t.Errorf("report should name the missing field: %s", body)
	}
}

func TestWatch_PicksUpDroppedFile(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.inbox.Watch(ctx, e.dir)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	drop(t, e.dir, "live.txt", reply)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.notes(t) == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("dropped file was not applied by the watcher")
}
