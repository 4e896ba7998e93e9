package server

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/auth"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/metrics"
)

// Registry errors surfaced to the router as error events.
var (
	errAuthRequired = errors.New("authentication required")
	errNotOwner     = errors.New("session belongs to another user")
	errSessionGone  = errors.New("unknown session")
)

// registry indexes the two session kinds. Session lifetime is decoupled
// from connection lifetime: a disconnect pauses sessions but leaves them
// here, which is what makes resumption across reconnects free.
type registry struct {
	uploads   sync.Map // fileID -> *UploadSession
	downloads sync.Map // sessionID -> *DownloadSession
}

// getOrCreateUpload returns the session for fileID, creating it if absent.
// Existing sessions keep their identity and temp path; the declared size
// and original name follow the latest start so a retry can correct them.
// On creation, a pre-existing staging file seeds bytesReceived (adoption).
func (s *Server) getOrCreateUpload(fileID, fileName string, fileSize uint64, folderID string, user auth.User, token string) (*UploadSession, bool, error) {
	if token == "" {
		return nil, false, errAuthRequired
	}

	if val, ok := s.reg.uploads.Load(fileID); ok {
		sess := val.(*UploadSession)
		if sess.UserID != user.ID {
			return nil, false, errNotOwner
		}
		sess.mu.Lock()
		sess.fileSize = fileSize
		sess.OriginalName = fileName
		if folderID != "" {
			sess.FolderID = folderID
		}
		// A restart after a forward failure or a reconnect re-arms the
		// session; completed staging is resumed, not truncated.
		if sess.status == UploadPaused || sess.status == UploadError {
			sess.status = UploadActive
		}
		sess.mu.Unlock()
		sess.touch()
		return sess, false, nil
	}

	sanitized, err := sanitizeFilename(fileName)
	if err != nil {
		return nil, false, err
	}

	sess := newUploadSession(fileID, sanitized, fileName, folderID, s.staging.PartPath(fileID, sanitized), fileSize)
	sess.UserID = user.ID
	sess.Username = user.Username
	sess.UserToken = token

	// Adoption-on-reconnect: an orphaned staging file from a previous
	// process or connection seeds the received count.
	if adopted := s.staging.Size(sess.TempPath); adopted > 0 {
		sess.bytesReceived = adopted
		metrics.RecordAdoption()
		logging.Info("adopted staging file",
			zap.String("file_id", fileID),
			zap.Uint64("offset", adopted))
	}

	if actual, loaded := s.reg.uploads.LoadOrStore(fileID, sess); loaded {
		// Another connection created the session first; use theirs.
		other := actual.(*UploadSession)
		if other.UserID != user.ID {
			return nil, false, errNotOwner
		}
		return other, false, nil
	}

	metrics.UploadSessionOpened()
	return sess, true, nil
}

// lookupUpload returns the session for fileID if it exists and is owned by
// the given user.
func (s *Server) lookupUpload(fileID string, userID int64) (*UploadSession, error) {
	val, ok := s.reg.uploads.Load(fileID)
	if !ok {
		return nil, errSessionGone
	}
	sess := val.(*UploadSession)
	if sess.UserID != userID {
		return nil, errNotOwner
	}
	return sess, nil
}

// removeUpload drops the session record. Staging file disposition is the
// caller's responsibility.
func (s *Server) removeUpload(fileID string) {
	if _, ok := s.reg.uploads.LoadAndDelete(fileID); ok {
		metrics.UploadSessionClosed()
	}
}

// removeUploadIfSame drops the session record only if sess is still the
// registered one, so a forwarder finishing late cannot evict a session
// that was re-created under the same file id in the meantime.
func (s *Server) removeUploadIfSame(sess *UploadSession) {
	if s.reg.uploads.CompareAndDelete(sess.FileID, sess) {
		metrics.UploadSessionClosed()
	}
}

// lookupDownload returns the download session if it exists and is owned by
// the given user.
func (s *Server) lookupDownload(sessionID string, userID int64) (*DownloadSession, error) {
	val, ok := s.reg.downloads.Load(sessionID)
	if !ok {
		return nil, errSessionGone
	}
	sess := val.(*DownloadSession)
	if sess.UserID != userID {
		return nil, errNotOwner
	}
	return sess, nil
}

// removeDownload drops the download session record.
func (s *Server) removeDownload(sessionID string) {
	if _, ok := s.reg.downloads.LoadAndDelete(sessionID); ok {
		metrics.DownloadSessionClosed()
	}
}

// pauseOwnedSessions transitions every active session owned by a departing
// connection to paused. No staging files are touched: the next start with
// the same id adopts them.
func (s *Server) pauseOwnedSessions(c *conn) {
	for fileID := range c.ownedUploads {
		if val, ok := s.reg.uploads.Load(fileID); ok {
			sess := val.(*UploadSession)
			sess.mu.Lock()
			if sess.status == UploadActive {
				sess.status = UploadPaused
				logging.Debug("paused on disconnect", zap.String("file_id", fileID))
			}
			sess.mu.Unlock()
		}
	}
	for sessionID := range c.ownedDownloads {
		if val, ok := s.reg.downloads.Load(sessionID); ok {
			sess := val.(*DownloadSession)
			sess.mu.Lock()
			active := sess.status == DownloadActive || sess.status == DownloadPending
			if active {
				sess.status = DownloadPaused
			}
			sess.mu.Unlock()
			if active {
				sess.cancelRun()
				logging.Debug("paused download on disconnect", zap.String("session_id", sessionID))
			}
		}
	}
}
