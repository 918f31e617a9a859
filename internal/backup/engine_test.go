package backup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/bitacora/internal/apperr"
	"github.com/starford/bitacora/internal/checksum"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/storage"
	"github.com/starford/bitacora/internal/store"
	"github.com/starford/bitacora/internal/testutil"
)

var syncTime = time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	docs := []struct {
		coll string
		doc  any
	}{
		{records.Clients, records.Client{FirstName: "Ana", LastName: "López", Type: records.ClientResidential, Active: true}},
		{records.Events, records.Event{Type: records.EventExpense, Status: records.StatusCompleted, Category: "materials", Amount: 80, Timestamp: 1}},
		{records.Bitacora, records.BitacoraEntry{Date: "2026-10-18", JobsCount: 2, Tags: []string{"hvac"}}},
	}
	for _, d := range docs {
		if _, err := s.Add(ctx, d.coll, d.doc); err != nil {
			t.Fatal(err)
		}
	}
}

func digest(t *testing.T, s *store.Store) string {
	t.Helper()
	data, err := s.Dump(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sum, err := checksum.JSON(data)
	if err != nil {
		t.Fatal(err)
	}
	return sum
}

func TestEngine_RoundTrip(t *testing.T) {
	s := testutil.TestStore(t)
	seed(t, s)
	remote := NewMemory()
	e := NewEngine(s, remote, WithClock(testutil.Clock(syncTime)))
	ctx := context.Background()

	before := digest(t, s)
	snap, err := e.Push(ctx, "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if snap.Records() != 3 || !snap.LastSync.Equal(syncTime) || snap.Version != records.LatestVersion() {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, err := s.Add(ctx, records.Notes, records.Note{Content: "after push"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, records.Clients, 1); err != nil {
		t.Fatal(err)
	}

	got, err := e.Restore(ctx, "")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got.Checksum != snap.Checksum {
		t.Errorf("checksum = %s, want %s", got.Checksum, snap.Checksum)
	}
	if after := digest(t, s); after != before {
		t.Error("restored store differs from pushed store")
	}
}

func TestEngine_PushOverwritesSingleFile(t *testing.T) {
	s := testutil.TestStore(t)
	remote := NewMemory()
	e := NewEngine(s, remote)
	ctx := context.Background()

	for range 3 {
		if _, err := e.Push(ctx, ""); err != nil {
			t.Fatal(err)
		}
	}
	if files, uploads := remote.Files(); files != 1 || uploads != 3 {
		t.Errorf("files = %d uploads = %d, want 1 and 3", files, uploads)
	}
}

func TestEngine_PullNoBackup(t *testing.T) {
	mem := NewMemory()
	e := NewEngine(testutil.TestStore(t), mem)
	if _, err := e.Pull(context.Background(), ""); !errors.Is(err, apperr.ErrNoBackup) {
		t.Errorf("err = %v, want ErrNoBackup", err)
	}
	if n := mem.Folders(); n != 0 {
		t.Errorf("pull created %d folders", n)
	}
}

func TestEngine_PullLeavesDirUntouched(t *testing.T) {
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(testutil.TestStore(t), NewDir(fs))
	if _, err := e.Pull(context.Background(), ""); !errors.Is(err, apperr.ErrNoBackup) {
		t.Fatalf("err = %v, want ErrNoBackup", err)
	}
	if _, err := os.Stat(filepath.Join(root, DefaultFolder)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backup folder should not exist, stat err = %v", err)
	}
}

func TestEngine_TimedOutRestoreLeavesStore(t *testing.T) {
	s := testutil.TestStore(t)
	seed(t, s)
	remote := NewMemory()
	ctx := context.Background()
	if _, err := NewEngine(s, remote).Push(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, records.Notes, records.Note{Content: "local only"}); err != nil {
		t.Fatal(err)
	}
	before := digest(t, s)

	remote.Delay = time.Second
	e := NewEngine(s, remote, WithTimeout(20*time.Millisecond))
	_, err := e.Restore(ctx, "")
	if apperr.SyncKindOf(err) != apperr.SyncTransient {
		t.Fatalf("err = %v, want transient sync error", err)
	}
	var se *apperr.SyncError
	if errors.As(err, &se) && !se.Retryable() {
		t.Error("timeout should be retryable")
	}
	if digest(t, s) != before {
		t.Error("store changed after failed restore")
	}
}

func TestEngine_NotConnected(t *testing.T) {
	e := NewEngine(testutil.TestStore(t), NewDrive())
	_, err := e.Push(context.Background(), "")
	if apperr.SyncKindOf(err) != apperr.SyncNotConnected {
		t.Errorf("err = %v, want not_connected", err)
	}
}

func TestEngine_DirRemote(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := testutil.TestStore(t)
	seed(t, s)
	e := NewEngine(s, NewDir(fs), WithFolder("backups"), WithFileName("snap.json"))
	ctx := context.Background()

	if _, err := e.Push(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if ok, _ := fs.Exists("backups/snap.json"); !ok {
		t.Fatal("snapshot file not written")
	}
	snap, err := e.Pull(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Data[records.Clients]) != 1 {
		t.Errorf("clients = %d", len(snap.Data[records.Clients]))
	}

	raw, _ := fs.Read("backups/snap.json")
	tampered := []byte(string(raw[:len(raw)-1]) + `,"extra":true}`)
	_ = fs.Write("backups/snap.json", tampered)
	if _, err := e.Pull(ctx, ""); err != nil {
		t.Errorf("unknown top-level fields should be ignored: %v", err)
	}

	_ = fs.Write("backups/snap.json", []byte(`{"app":"other","data":{}}`))
	if _, err := e.Pull(ctx, ""); err == nil {
		t.Error("expected error for foreign snapshot")
	}
}

func TestEngine_ChecksumMismatch(t *testing.T) {
	s := testutil.TestStore(t)
	seed(t, s)
	remote := NewMemory()
	e := NewEngine(s, remote)
	ctx := context.Background()
	if _, err := e.Push(ctx, ""); err != nil {
		t.Fatal(err)
	}
	snap, _ := e.Pull(ctx, "")
	snap.Data[records.Notes] = nil
	snap.Checksum = "0000"
	if err := snap.Verify(); err == nil {
		t.Error("expected checksum mismatch")
	}
}

func TestEngine_RestoreOlderSnapshotMigrates(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data := map[string][]json.RawMessage{
		records.Clients: {json.RawMessage(`{"id":1,"name":"Ana Lopez","active":true}`)},
		records.Events:  {json.RawMessage(`{"id":4,"type":"income","status":"completed","amount":100,"timestamp":1}`)},
	}
	old, err := NewSnapshot(2, data, syncTime)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(old)
	if err := fs.Write("backups/snap.json", raw); err != nil {
		t.Fatal(err)
	}

	s := testutil.TestStore(t)
	e := NewEngine(s, NewDir(fs), WithFolder("backups"), WithFileName("snap.json"))
	ctx := context.Background()
	if _, err := e.Restore(ctx, ""); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	var c records.Client
	if err := s.Get(ctx, records.Clients, 1, &c); err != nil {
		t.Fatal(err)
	}
	if c.FirstName != "Ana" || c.LastName != "Lopez" {
		t.Errorf("client = %+v, want first_name Ana last_name Lopez", c)
	}
	if n, _ := s.Count(ctx, records.Events, store.Query{}); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
	if s.Version() != records.LatestVersion() {
		t.Errorf("store version = %d", s.Version())
	}
}
