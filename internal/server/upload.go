package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/forward"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/metrics"
	"github.com/lqhuy/ferry/internal/protocol"
)

// chunkResult classifies one chunk append attempt.
type chunkResult int

const (
	chunkAppended chunkResult = iota
	chunkMismatch
	chunkPaused
	chunkRejected
	chunkStorageError
)

// handleStart allocates or adopts an upload session and reports the offset
// the client should seek to.
func (s *Server) handleStart(ctx context.Context, c *conn, f *protocol.StartFrame) {
	if max := s.cfg.Server.MaxFileSize; max > 0 && f.FileSize > max {
		c.sendError(f.FileID, fmt.Sprintf("file exceeds maximum size of %d bytes", max))
		return
	}
	if !s.staging.HasRoom(f.FileSize) {
		c.sendError(f.FileID, "insufficient staging space")
		return
	}

	sess, created, err := s.getOrCreateUpload(f.FileID, f.FileName, f.FileSize, f.FolderID, c.user, c.token)
	if err != nil {
		c.sendError(f.FileID, err.Error())
		return
	}

	if created {
		dbID, err := s.meta.InsertFile(ctx, FileMeta{
			FileID:       sess.FileID,
			Name:         sess.FileName,
			OriginalName: sess.OriginalName,
			Size:         f.FileSize,
			UserID:       sess.UserID,
			Uploader:     sess.Username,
			FolderID:     sess.FolderID,
			Status:       "uploading",
		})
		if err != nil {
			s.removeUpload(sess.FileID)
			logging.Error("metadata insert failed", zap.String("file_id", f.FileID), zap.Error(err))
			c.sendError(f.FileID, "metadata store unavailable")
			return
		}
		sess.mu.Lock()
		sess.dbID = dbID
		sess.mu.Unlock()
	}

	c.ownedUploads[sess.FileID] = struct{}{}

	offset := sess.BytesReceived()
	logging.Info("upload session started",
		zap.String("file_id", sess.FileID),
		zap.String("name", sess.FileName),
		zap.Uint64("size", f.FileSize),
		zap.Uint64("offset", offset),
		zap.Bool("created", created))
	_ = c.send(protocol.EventStartAck, protocol.NewStartAck(sess.FileID, offset))
}

// handleChunk appends one run of bytes under the session's write lock and
// emits throttled progress. A stale offset is answered with the expected
// one and nothing else; the client rewinds and resumes.
func (s *Server) handleChunk(ctx context.Context, c *conn, f *protocol.ChunkFrame) {
	sess, err := s.lookupUpload(f.FileID, c.user.ID)
	if err != nil {
		c.sendError(f.FileID, err.Error())
		return
	}

	result, offset, size, emit := s.appendChunk(sess, f.Offset, f.Data)

	switch result {
	case chunkMismatch:
		metrics.RecordChunk("offset_mismatch")
		_ = c.send(protocol.EventOffsetMismatch, protocol.NewOffsetMismatch(f.FileID, offset))
		return
	case chunkPaused:
		metrics.RecordChunk("rejected")
		c.sendError(f.FileID, "session is paused")
		return
	case chunkRejected:
		metrics.RecordChunk("rejected")
		c.sendError(f.FileID, "session is not active")
		return
	case chunkStorageError:
		metrics.RecordChunk("storage_error")
		c.sendError(f.FileID, "staging write failed")
		return
	}

	metrics.RecordChunk("appended")
	metrics.RecordUploadBytes(len(f.Data))

	if emit {
		_ = c.send(protocol.EventProgress, protocol.NewProgress(f.FileID, offset, size))
	}

	if offset == size {
		s.forwardUpload(ctx, c, sess)
	}
}

// appendChunk performs the offset check and append atomically. It returns
// the authoritative offset after the attempt, the declared size, and
// whether a progress event is due (the final one always is).
func (s *Server) appendChunk(sess *UploadSession, offset uint64, data []byte) (chunkResult, uint64, uint64, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.status {
	case UploadActive:
	case UploadPaused:
		return chunkPaused, sess.bytesReceived, sess.fileSize, false
	default:
		return chunkRejected, sess.bytesReceived, sess.fileSize, false
	}

	if offset != sess.bytesReceived {
		return chunkMismatch, sess.bytesReceived, sess.fileSize, false
	}
	if sess.bytesReceived+uint64(len(data)) > sess.fileSize {
		return chunkRejected, sess.bytesReceived, sess.fileSize, false
	}

	file, err := s.staging.OpenAppend(sess.TempPath)
	if err != nil {
		sess.status = UploadError
		logging.Error("staging open failed", zap.String("path", sess.TempPath), zap.Error(err))
		return chunkStorageError, sess.bytesReceived, sess.fileSize, false
	}
	n, err := file.Write(data)
	_ = file.Close()
	if err != nil || n != len(data) {
		// Partial writes leave the staging file ahead of bytesReceived;
		// the file length is the truth, so resync to it.
		sess.status = UploadError
		sess.bytesReceived = s.staging.Size(sess.TempPath)
		logging.Error("staging append failed", zap.String("file_id", sess.FileID), zap.Error(err))
		return chunkStorageError, sess.bytesReceived, sess.fileSize, false
	}

	sess.bytesReceived += uint64(n)
	sess.lastActivity = time.Now()

	complete := sess.bytesReceived == sess.fileSize
	if complete {
		sess.status = UploadUploading
	}
	emit := sess.progress.Allow() || complete
	return chunkAppended, sess.bytesReceived, sess.fileSize, emit
}

// forwardUpload streams the assembled staging file downstream. Success
// removes the session and its staging file; failure retains both so a
// subsequent start with the same file id can retry. Attempts are
// serialized per session: a second completer blocks until the first
// attempt resolves and, when it succeeded, is answered from the recorded
// destination instead of forwarding again.
func (s *Server) forwardUpload(ctx context.Context, c *conn, sess *UploadSession) {
	sess.forwardMu.Lock()
	defer sess.forwardMu.Unlock()

	sess.mu.Lock()
	if sess.status == UploadCompleted {
		path := sess.finalPath
		sess.mu.Unlock()
		_ = c.send(protocol.EventCompleteAck, protocol.NewCompleteAck(sess.FileID, path))
		return
	}
	sess.status = UploadUploading
	size := sess.fileSize
	dbID := sess.dbID
	sess.mu.Unlock()

	// A zero-byte upload never writes a chunk, so no staging file exists.
	var body io.Reader
	file, err := os.Open(sess.TempPath)
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		body = file
	case os.IsNotExist(err) && size == 0:
		body = bytes.NewReader(nil)
	default:
		sess.setStatus(UploadError)
		logging.Error("staging open for forward failed", zap.String("file_id", sess.FileID), zap.Error(err))
		c.sendError(sess.FileID, "staging file unavailable")
		return
	}

	started := time.Now()
	finalPath, err := s.forwarder.Forward(ctx, forward.Request{
		FileID:    sess.FileID,
		FileName:  sess.OriginalName,
		FileSize:  size,
		FolderID:  sess.FolderID,
		Username:  sess.Username,
		UserToken: sess.UserToken,
		Body:      body,
	})
	elapsed := time.Since(started)

	if err != nil {
		metrics.RecordForward(s.forwarder.Name(), "failure", elapsed.Seconds(), size)
		sess.setStatus(UploadError)
		if uerr := s.meta.UpdateFileStatus(ctx, dbID, "error", ""); uerr != nil {
			logging.Warn("metadata update failed", zap.Int64("db_id", dbID), zap.Error(uerr))
		}
		logging.Error("forward failed",
			zap.String("file_id", sess.FileID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		c.sendError(sess.FileID, fmt.Sprintf("forward failed: %v", err))
		return
	}

	metrics.RecordForward(s.forwarder.Name(), "success", elapsed.Seconds(), size)
	metrics.RecordUploadSessionDuration(time.Since(sess.CreatedAt).Seconds())

	sess.mu.Lock()
	sess.status = UploadCompleted
	sess.finalPath = finalPath
	sess.lastActivity = time.Now()
	sess.mu.Unlock()

	if err := os.Remove(sess.TempPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("staging cleanup failed", zap.String("path", sess.TempPath), zap.Error(err))
	}
	if err := s.meta.UpdateFileStatus(ctx, dbID, "completed", finalPath); err != nil {
		logging.Warn("metadata update failed", zap.Int64("db_id", dbID), zap.Error(err))
	}
	s.removeUploadIfSame(sess)
	delete(c.ownedUploads, sess.FileID)

	logging.Info("upload forwarded",
		zap.String("file_id", sess.FileID),
		zap.String("path", finalPath),
		zap.Uint64("bytes", size),
		zap.Duration("elapsed", elapsed))
	_ = c.send(protocol.EventCompleteAck, protocol.NewCompleteAck(sess.FileID, finalPath))
}

// handlePause suspends a session. Chunks arriving before resume are
// rejected with a benign error.
func (s *Server) handlePause(c *conn, f *protocol.PauseFrame) {
	sess, err := s.lookupUpload(f.FileID, c.user.ID)
	if err != nil {
		c.sendError(f.FileID, err.Error())
		return
	}
	sess.setStatus(UploadPaused)
	_ = c.send(protocol.EventPauseAck, protocol.NewPauseAck(f.FileID, sess.BytesReceived()))
}

// handleResume reactivates a paused session.
func (s *Server) handleResume(c *conn, f *protocol.ResumeFrame) {
	sess, err := s.lookupUpload(f.FileID, c.user.ID)
	if err != nil {
		c.sendError(f.FileID, err.Error())
		return
	}
	sess.setStatus(UploadActive)
	_ = c.send(protocol.EventResumeAck, protocol.NewResumeAck(f.FileID, sess.BytesReceived()))
}

// handleStop discards the session and its staging file. Stop is
// irrevocable: the next start with this file id begins at offset 0.
func (s *Server) handleStop(ctx context.Context, c *conn, f *protocol.StopFrame) {
	sess, err := s.lookupUpload(f.FileID, c.user.ID)
	if err != nil {
		c.sendError(f.FileID, err.Error())
		return
	}

	sess.setStatus(UploadStopped)
	if err := os.Remove(sess.TempPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("staging delete failed", zap.String("path", sess.TempPath), zap.Error(err))
	}

	sess.mu.Lock()
	dbID := sess.dbID
	sess.mu.Unlock()
	if err := s.meta.UpdateFileStatus(ctx, dbID, "stopped", ""); err != nil {
		logging.Warn("metadata update failed", zap.Int64("db_id", dbID), zap.Error(err))
	}

	s.removeUpload(f.FileID)
	delete(c.ownedUploads, f.FileID)
	logging.Info("upload stopped", zap.String("file_id", f.FileID))
	_ = c.send(protocol.EventStopAck, protocol.NewStopAck(f.FileID))
}

// handleComplete forwards a fully staged file on explicit client request.
// The natural-completion path forwards and removes the session, and the
// ack may have gone to a connection that is already gone; an unknown file
// id is therefore answered from the durable metadata record so a
// reconnecting client still gets a verdict.
func (s *Server) handleComplete(ctx context.Context, c *conn, f *protocol.CompleteFrame) {
	sess, err := s.lookupUpload(f.FileID, c.user.ID)
	if err != nil {
		if err == errSessionGone {
			state, merr := s.meta.LookupFile(ctx, f.FileID)
			if merr != nil {
				logging.Warn("metadata lookup failed", zap.String("file_id", f.FileID), zap.Error(merr))
			}
			if state != nil && state.Status == "completed" {
				logging.Debug("complete answered from metadata", zap.String("file_id", f.FileID))
				_ = c.send(protocol.EventCompleteAck, protocol.NewCompleteAck(f.FileID, state.Path))
				return
			}
			c.sendError(f.FileID, errSessionGone.Error())
			return
		}
		c.sendError(f.FileID, err.Error())
		return
	}

	received, size := sess.BytesReceived(), sess.FileSize()
	if received != size {
		c.sendError(f.FileID, fmt.Sprintf("upload incomplete: %d of %d bytes", received, size))
		return
	}

	s.forwardUpload(ctx, c, sess)
}
