package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// Staging is the single directory of partial transfer files. Staging files
// are the only on-disk state the relay owns: their byte length is the
// authoritative received count after any crash or reconnect.
type Staging struct {
	dir string
}

// NewStaging creates the staging directory if needed.
func NewStaging(dir string) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	return &Staging{dir: abs}, nil
}

// Dir returns the staging directory path.
func (st *Staging) Dir() string { return st.dir }

// PartPath returns the staging path for an upload session. The name must
// already be sanitized.
func (st *Staging) PartPath(fileID, name string) string {
	return filepath.Join(st.dir, fmt.Sprintf("%s_%s.part", fileID, name))
}

// DownloadPath returns the temp path for a download session. The name must
// already be sanitized.
func (st *Staging) DownloadPath(sessionID, name string) string {
	return filepath.Join(st.dir, fmt.Sprintf("%s_%s.download", sessionID, name))
}

// Size returns the current byte length of a staging file, or 0 if it does
// not exist.
func (st *Staging) Size(path string) uint64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(fi.Size())
}

// OpenAppend opens a staging file for appending, creating it if needed.
// The caller must hold the session's write lock.
func (st *Staging) OpenAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

// FreeBytes reports the free space on the staging filesystem.
func (st *Staging) FreeBytes() (uint64, error) {
	usage, err := disk.Usage(st.dir)
	if err != nil {
		return 0, fmt.Errorf("stat staging filesystem: %w", err)
	}
	return usage.Free, nil
}

// HasRoom reports whether the staging filesystem can hold size more bytes.
// Probe failures count as room: a broken statfs should not block uploads.
func (st *Staging) HasRoom(size uint64) bool {
	free, err := st.FreeBytes()
	if err != nil {
		return true
	}
	return free >= size
}
