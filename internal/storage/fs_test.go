package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/bitacora/internal/checksum"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte(`{"app":"bitacora"}`)
	if err := s.Write("backup.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("backup.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("a/b/c.json", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ok, err := s.Exists("a/b")
	if err != nil || !ok {
		t.Errorf("Exists(a/b) = %v, %v", ok, err)
	}
}

func TestMoveAndDelete(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("reply.txt", []byte("data"))
	if err := s.Move("reply.txt", "processed/reply.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ok, _ := s.Exists("reply.txt"); ok {
		t.Error("old path should not exist")
	}
	if err := s.Delete("processed/reply.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("processed/reply.txt"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestList_SuffixAndDepth(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.txt", []byte("a"))
	_ = s.Write("b.txt", []byte("b"))
	_ = s.Write("a.result.json", []byte("{}"))
	_ = s.Write("processed/c.txt", []byte("c"))

	items, err := s.List("", ".txt")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		data, _ := s.Read(it.Path)
		if it.Checksum != checksum.Sum(data) || it.Size != 1 {
			t.Errorf("item = %+v", it)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd", "../outside.json", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("atomic.json", []byte("original"))
	if err := s.Write("atomic.json", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.json")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".bitacora-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_CreatesMissingDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups", "nested")
	if _, err := NewFS(root); err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "bitacora-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
