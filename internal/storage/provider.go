// Package storage is a sandboxed local file area used for the inbox
// drop folder and for directory backups.
package storage

import "time"

// FileInfo describes one file under the root.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for file operations relative to a root directory.
type Provider interface {
	// List returns every file directly under dir whose name ends in suffix.
	List(dir, suffix string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Exists reports whether path names an existing file or directory.
	Exists(path string) (bool, error)
	// Mkdir creates dir and any missing parents.
	Mkdir(dir string) error
}
