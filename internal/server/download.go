package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/metrics"
	"github.com/lqhuy/ferry/internal/protocol"
)

// handleDownloadStart creates a download session and launches the engine.
func (s *Server) handleDownloadStart(c *conn, f *protocol.DownloadStartFrame) {
	parsed, err := url.Parse(f.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.sendError("", fmt.Sprintf("invalid download url: %s", f.URL))
		return
	}

	name := f.Filename
	if name == "" {
		name = path.Base(parsed.Path)
	}
	sanitized, err := sanitizeFilename(name)
	if err != nil {
		sanitized = "download.bin"
	}

	sessionID := uuid.NewString()
	sess := newDownloadSession(sessionID, f.URL, sanitized, s.staging.DownloadPath(sessionID, sanitized))
	sess.UserID = c.user.ID
	sess.Username = c.user.Username

	s.reg.downloads.Store(sessionID, sess)
	metrics.DownloadSessionOpened()
	c.ownedDownloads[sessionID] = struct{}{}

	logging.Info("download started",
		zap.String("session_id", sessionID),
		zap.String("url", f.URL),
		zap.String("name", sanitized))
	_ = c.send(protocol.EventDownloadStartAck, protocol.NewDownloadStartAck(sessionID, f.URL, sanitized))

	s.launchDownload(c, sess)
}

// handleDownloadPause suspends the engine at the next chunk boundary. The
// partial file is retained for resumption.
func (s *Server) handleDownloadPause(c *conn, f *protocol.DownloadPauseFrame) {
	sess, err := s.lookupDownload(f.SessionID, c.user.ID)
	if err != nil {
		c.sendError("", err.Error())
		return
	}
	sess.setStatus(DownloadPaused)
	sess.cancelRun()
	downloaded, total := sess.Progress()
	_ = c.send(protocol.EventDownloadInfo,
		protocol.NewDownloadInfo(sess.SessionID, string(DownloadPaused), sess.Filename, total, downloaded))
}

// handleDownloadResume re-enters the engine, which sees the partial file
// and re-issues the request with a Range header.
func (s *Server) handleDownloadResume(c *conn, f *protocol.DownloadResumeFrame) {
	sess, err := s.lookupDownload(f.SessionID, c.user.ID)
	if err != nil {
		c.sendError("", err.Error())
		return
	}
	if sess.Status() == DownloadActive {
		c.sendError("", "download already active")
		return
	}
	downloaded, total := sess.Progress()
	_ = c.send(protocol.EventDownloadInfo,
		protocol.NewDownloadInfo(sess.SessionID, string(DownloadActive), sess.Filename, total, downloaded))
	s.launchDownload(c, sess)
}

// handleDownloadStop aborts the engine, deletes the partial file and
// removes the session.
func (s *Server) handleDownloadStop(c *conn, f *protocol.DownloadStopFrame) {
	sess, err := s.lookupDownload(f.SessionID, c.user.ID)
	if err != nil {
		c.sendError("", err.Error())
		return
	}
	sess.setStatus(DownloadStopped)
	sess.cancelRun()
	if err := os.Remove(sess.TempPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("download temp delete failed", zap.String("path", sess.TempPath), zap.Error(err))
	}
	s.removeDownload(sess.SessionID)
	delete(c.ownedDownloads, sess.SessionID)
	metrics.RecordDownloadResult("stopped")

	downloaded, total := sess.Progress()
	_ = c.send(protocol.EventDownloadInfo,
		protocol.NewDownloadInfo(sess.SessionID, string(DownloadStopped), sess.Filename, total, downloaded))
}

// launchDownload starts one engine run in its own goroutine. The run owns
// the session until it exits; pause and stop reach it through the run
// context.
func (s *Server) launchDownload(c *conn, sess *DownloadSession) {
	ctx, cancel := context.WithCancel(s.shutdownCtx)
	sess.setCancel(cancel)
	sess.setStatus(DownloadActive)

	go func() {
		defer cancel()
		s.runDownload(ctx, c, sess)
	}()
}

// runDownload performs one engine run: issue the request (with Range when
// resuming), drain the body in fixed-size reads, and observe pause/stop
// cooperatively at each chunk boundary. Transport errors retain the
// partial file so a manual resume can pick it up.
func (s *Server) runDownload(ctx context.Context, c *conn, sess *DownloadSession) {
	downloaded, _ := sess.Progress()
	resuming := downloaded > 0

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.URL, nil)
	if err != nil {
		s.downloadFailed(c, sess, err)
		return
	}
	if resuming {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
		metrics.RecordDownloadResume()
	}

	resp, err := s.downloadClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			s.downloadInterrupted(sess)
			return
		}
		s.downloadFailed(c, sess, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if resp.ContentLength > 0 {
			sess.setTotal(downloaded + uint64(resp.ContentLength))
		}
	case http.StatusOK:
		if resuming {
			// Server ignored the Range header; start over.
			if err := os.Truncate(sess.TempPath, 0); err != nil && !os.IsNotExist(err) {
				s.downloadFailed(c, sess, fmt.Errorf("truncate partial: %w", err))
				return
			}
			sess.resetDownloaded()
			downloaded = 0
		}
		if resp.ContentLength > 0 {
			sess.setTotal(uint64(resp.ContentLength))
		}
	default:
		s.downloadFailed(c, sess, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return
	}

	file, err := s.staging.OpenAppend(sess.TempPath)
	if err != nil {
		s.downloadFailed(c, sess, err)
		return
	}

	var sink io.Writer = file
	if s.downloadLimiter != nil {
		sink = &rateLimitedWriter{w: file, limiter: s.downloadLimiter, ctx: ctx}
	}

	buf := make([]byte, DownloadReadSize)
	for {
		if ctx.Err() != nil || sess.Status() != DownloadActive {
			_ = file.Close()
			s.downloadInterrupted(sess)
			return
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				_ = file.Close()
				if ctx.Err() != nil {
					s.downloadInterrupted(sess)
					return
				}
				s.downloadFailed(c, sess, werr)
				return
			}
			got := sess.addDownloaded(uint64(n))
			metrics.RecordDownloadBytes(n)

			_, total := sess.Progress()
			if sess.progress.Allow() {
				_ = c.send(protocol.EventDownloadProgress,
					protocol.NewDownloadProgress(sess.SessionID, got, total))
			}
		}
		if err == io.EOF {
			_ = file.Close()
			s.downloadFinished(c, sess)
			return
		}
		if err != nil {
			_ = file.Close()
			if ctx.Err() != nil {
				s.downloadInterrupted(sess)
				return
			}
			s.downloadFailed(c, sess, err)
			return
		}
	}
}

// downloadInterrupted handles a cooperative pause or stop mid-run. The
// control handlers already acknowledged the transition and disposed of the
// partial file when stopping; the engine just exits.
func (s *Server) downloadInterrupted(sess *DownloadSession) {
	logging.Debug("download run interrupted",
		zap.String("session_id", sess.SessionID),
		zap.String("status", string(sess.Status())))
}

// downloadFinished verifies the byte count and promotes the temp file into
// the user's download area with de-duplicated naming.
func (s *Server) downloadFinished(c *conn, sess *DownloadSession) {
	downloaded, total := sess.Progress()
	if total > 0 && downloaded < total {
		s.downloadFailed(c, sess, fmt.Errorf("truncated body: %d of %d bytes", downloaded, total))
		return
	}

	userDir := filepath.Join(s.cfg.Server.DownloadsDir, sess.Username)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		s.downloadFailed(c, sess, err)
		return
	}
	finalPath := findUniqueFilename(userDir, sess.Filename)
	if err := os.Rename(sess.TempPath, finalPath); err != nil {
		s.downloadFailed(c, sess, err)
		return
	}

	sess.setStatus(DownloadCompleted)
	s.removeDownload(sess.SessionID)
	metrics.RecordDownloadResult("completed")

	if dbID, err := s.meta.InsertFile(context.Background(), FileMeta{
		FileID:       sess.SessionID,
		Name:         filepath.Base(finalPath),
		OriginalName: sess.Filename,
		Size:         downloaded,
		UserID:       sess.UserID,
		Uploader:     sess.Username,
		Status:       "completed",
	}); err != nil {
		logging.Warn("metadata insert for download failed", zap.Error(err))
	} else if err := s.meta.UpdateFileStatus(context.Background(), dbID, "completed",
		filepath.Join(sess.Username, filepath.Base(finalPath))); err != nil {
		logging.Warn("metadata update for download failed", zap.Int64("db_id", dbID), zap.Error(err))
	}

	logging.Info("download complete",
		zap.String("session_id", sess.SessionID),
		zap.String("path", finalPath),
		zap.Uint64("bytes", downloaded))

	// The final progress emission bypasses the throttle.
	_ = c.send(protocol.EventDownloadProgress,
		protocol.NewDownloadProgress(sess.SessionID, downloaded, total))
	_ = c.send(protocol.EventDownloadComplete,
		protocol.NewDownloadComplete(sess.SessionID, finalPath, filepath.Base(finalPath)))
}

// downloadFailed marks the session errored and retains the partial file so
// a manual resume can continue from it.
func (s *Server) downloadFailed(c *conn, sess *DownloadSession, err error) {
	sess.setStatus(DownloadErrored)
	metrics.RecordDownloadResult("error")
	logging.Error("download failed",
		zap.String("session_id", sess.SessionID),
		zap.String("url", sess.URL),
		zap.Error(err))
	_ = c.send(protocol.EventDownloadError,
		protocol.NewDownloadError(sess.SessionID, err.Error()))
}
