package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lqhuy/ferry/internal/protocol"
)

// UploadStatus is the lifecycle state of an upload session.
type UploadStatus string

const (
	UploadActive    UploadStatus = "active"
	UploadPaused    UploadStatus = "paused"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadStopped   UploadStatus = "stopped"
	UploadError     UploadStatus = "error"
)

// DownloadStatus is the lifecycle state of a download session.
type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadActive    DownloadStatus = "active"
	DownloadPaused    DownloadStatus = "paused"
	DownloadCompleted DownloadStatus = "completed"
	DownloadStopped   DownloadStatus = "stopped"
	DownloadErrored   DownloadStatus = "error"
)

// UploadSession tracks one in-progress chunked upload. Identity fields are
// bound at creation and never change; everything mutable is guarded by mu,
// which doubles as the session's write lock: at most one chunk append is in
// flight at any time, and the staging file length equals bytesReceived
// whenever mu is free.
type UploadSession struct {
	FileID       string
	FileName     string // sanitized basename
	OriginalName string // client-declared, forwarded verbatim
	FolderID     string
	TempPath     string
	UserID       int64
	Username     string
	UserToken    string
	CreatedAt    time.Time

	// forwardMu serializes forward attempts: at most one downstream
	// stream per session, and a late completer observes the first
	// attempt's outcome instead of forwarding again.
	forwardMu sync.Mutex

	mu            sync.Mutex
	status        UploadStatus
	fileSize      uint64
	bytesReceived uint64
	finalPath     string
	dbID          int64
	lastActivity  time.Time

	// progress throttles emissions to one per protocol.ProgressInterval.
	// The final emission bypasses it.
	progress *rate.Limiter
}

func newUploadSession(fileID, fileName, originalName, folderID, tempPath string, fileSize uint64) *UploadSession {
	now := time.Now()
	return &UploadSession{
		FileID:       fileID,
		FileName:     fileName,
		OriginalName: originalName,
		FolderID:     folderID,
		TempPath:     tempPath,
		CreatedAt:    now,
		status:       UploadActive,
		fileSize:     fileSize,
		lastActivity: now,
		progress:     rate.NewLimiter(rate.Every(protocol.ProgressInterval), 1),
	}
}

// Status returns the current lifecycle state.
func (u *UploadSession) Status() UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

func (u *UploadSession) setStatus(st UploadStatus) {
	u.mu.Lock()
	u.status = st
	u.lastActivity = time.Now()
	u.mu.Unlock()
}

// BytesReceived returns the authoritative received byte count.
func (u *UploadSession) BytesReceived() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bytesReceived
}

// FileSize returns the declared total size.
func (u *UploadSession) FileSize() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fileSize
}

func (u *UploadSession) touch() {
	u.mu.Lock()
	u.lastActivity = time.Now()
	u.mu.Unlock()
}

func (u *UploadSession) idleSince() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastActivity
}

// DownloadSession tracks one server-side URL fetch. It shares the registry
// indexing pattern with UploadSession but nothing else: the lifecycle, wire
// events and staging semantics are distinct.
type DownloadSession struct {
	SessionID string
	URL       string
	Filename  string // sanitized
	TempPath  string
	UserID    int64
	Username  string
	CreatedAt time.Time

	mu           sync.Mutex
	status       DownloadStatus
	totalSize    uint64
	downloaded   uint64
	cancel       context.CancelFunc // cancels the in-flight engine run
	lastActivity time.Time

	progress *rate.Limiter
}

func newDownloadSession(sessionID, url, filename, tempPath string) *DownloadSession {
	now := time.Now()
	return &DownloadSession{
		SessionID:    sessionID,
		URL:          url,
		Filename:     filename,
		TempPath:     tempPath,
		CreatedAt:    now,
		status:       DownloadPending,
		lastActivity: now,
		progress:     rate.NewLimiter(rate.Every(protocol.ProgressInterval), 1),
	}
}

// Status returns the current lifecycle state.
func (d *DownloadSession) Status() DownloadStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *DownloadSession) setStatus(st DownloadStatus) {
	d.mu.Lock()
	d.status = st
	d.lastActivity = time.Now()
	d.mu.Unlock()
}

// Progress returns the downloaded and total byte counts.
func (d *DownloadSession) Progress() (downloaded, total uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloaded, d.totalSize
}

func (d *DownloadSession) setTotal(total uint64) {
	d.mu.Lock()
	d.totalSize = total
	d.mu.Unlock()
}

func (d *DownloadSession) addDownloaded(n uint64) uint64 {
	d.mu.Lock()
	d.downloaded += n
	d.lastActivity = time.Now()
	got := d.downloaded
	d.mu.Unlock()
	return got
}

func (d *DownloadSession) resetDownloaded() {
	d.mu.Lock()
	d.downloaded = 0
	d.mu.Unlock()
}

func (d *DownloadSession) setCancel(cancel context.CancelFunc) {
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
}

func (d *DownloadSession) cancelRun() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *DownloadSession) idleSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivity
}
