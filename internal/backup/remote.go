package backup

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/starford/bitacora/internal/storage"
)

// Remote stores named files inside a folder. accessToken authorizes each
// call; local remotes ignore it.
type Remote interface {
	// EnsureFolder returns the id of the folder called name, creating it if absent.
	EnsureFolder(ctx context.Context, accessToken, name string) (string, error)
	// FindFolder looks up the folder called name without creating it.
	FindFolder(ctx context.Context, accessToken, name string) (folderID string, found bool, err error)
	// Find looks up a file by name inside folderID.
	Find(ctx context.Context, accessToken, folderID, name string) (fileID string, found bool, err error)
	// Upload overwrites fileID, or creates name in folderID when fileID is empty.
	Upload(ctx context.Context, accessToken, folderID, fileID, name string, data []byte) (string, error)
	// Download returns the content of fileID.
	Download(ctx context.Context, accessToken, fileID string) ([]byte, error)
}

// local is implemented by remotes that need no access token.
type local interface {
	Local() bool
}

func needsToken(r Remote) bool {
	l, ok := r.(local)
	return !ok || !l.Local()
}

// Dir keeps the backup in a local directory, written atomically.
type Dir struct {
	fs storage.Provider
}

// NewDir creates a Dir remote over fs.
func NewDir(fs storage.Provider) *Dir {
	return &Dir{fs: fs}
}

func (*Dir) Local() bool { return true }

func (d *Dir) EnsureFolder(_ context.Context, _, name string) (string, error) {
	if err := d.fs.Mkdir(name); err != nil {
		return "", err
	}
	return name, nil
}

func (d *Dir) FindFolder(_ context.Context, _, name string) (string, bool, error) {
	ok, err := d.fs.Exists(name)
	if err != nil || !ok {
		return "", false, err
	}
	return name, true, nil
}

func (d *Dir) Find(_ context.Context, _, folderID, name string) (string, bool, error) {
	p := path.Join(folderID, name)
	ok, err := d.fs.Exists(p)
	if err != nil || !ok {
		return "", false, err
	}
	return p, true, nil
}

func (d *Dir) Upload(_ context.Context, _, folderID, fileID, name string, data []byte) (string, error) {
	if fileID == "" {
		fileID = path.Join(folderID, name)
	}
	if err := d.fs.Write(fileID, data); err != nil {
		return "", err
	}
	return fileID, nil
}

func (d *Dir) Download(_ context.Context, _, fileID string) ([]byte, error) {
	return d.fs.Read(fileID)
}

// Memory is an in-process remote. Delay holds every call until it
// elapses or ctx ends; Fail, when set, is returned by every call.
type Memory struct {
	mu      sync.Mutex
	folders map[string]bool
	files   map[string][]byte
	uploads int

	Delay time.Duration
	Fail  error
}

// NewMemory creates an empty Memory remote.
func NewMemory() *Memory {
	return &Memory{folders: map[string]bool{}, files: map[string][]byte{}}
}

func (*Memory) Local() bool { return true }

func (m *Memory) wait(ctx context.Context) error {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return m.Fail
}

func (m *Memory) EnsureFolder(ctx context.Context, _, name string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[name] = true
	return name, nil
}

func (m *Memory) FindFolder(ctx context.Context, _, name string) (string, bool, error) {
	if err := m.wait(ctx); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.folders[name] {
		return "", false, nil
	}
	return name, true, nil
}

func (m *Memory) Find(ctx context.Context, _, folderID, name string) (string, bool, error) {
	if err := m.wait(ctx); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := folderID + "/" + name
	_, ok := m.files[id]
	return id, ok, nil
}

func (m *Memory) Upload(ctx context.Context, _, folderID, fileID, name string, data []byte) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.folders[folderID] {
		return "", fmt.Errorf("memory remote: no folder %q", folderID)
	}
	if fileID == "" {
		fileID = folderID + "/" + name
	}
	m.files[fileID] = append([]byte(nil), data...)
	m.uploads++
	return fileID, nil
}

func (m *Memory) Download(ctx context.Context, _, fileID string) ([]byte, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("memory remote: no file %q", fileID)
	}
	return append([]byte(nil), data...), nil
}

// Folders returns the number of folders created so far.
func (m *Memory) Folders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.folders)
}

// Files returns the number of stored files and completed uploads.
func (m *Memory) Files() (files, uploads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files), m.uploads
}
