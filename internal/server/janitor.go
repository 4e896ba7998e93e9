package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/logging"
)

// janitor is the opt-in stale-session sweeper. Durability is the default
// posture: nothing runs unless a cron schedule is configured, and only
// sessions idle longer than maxAge are touched.
type janitor struct {
	srv    *Server
	maxAge time.Duration
	cron   *cron.Cron
}

func startJanitor(srv *Server, schedule string, maxAge time.Duration) (*janitor, error) {
	j := &janitor{srv: srv, maxAge: maxAge, cron: cron.New()}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	j.cron.Start()
	logging.Info("janitor scheduled",
		zap.String("schedule", schedule),
		zap.Duration("max_age", maxAge))
	return j, nil
}

func (j *janitor) stop() {
	ctx := j.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

// sweep removes upload and download sessions stuck in paused or error
// longer than maxAge, then deletes orphaned staging files that no live
// session claims.
func (j *janitor) sweep() {
	cutoff := time.Now().Add(-j.maxAge)
	live := make(map[string]struct{})

	j.srv.reg.uploads.Range(func(key, value any) bool {
		sess := value.(*UploadSession)
		st := sess.Status()
		stale := (st == UploadPaused || st == UploadError) && sess.idleSince().Before(cutoff)
		if !stale {
			live[filepath.Base(sess.TempPath)] = struct{}{}
			return true
		}

		logging.Info("sweeping stale upload", zap.String("file_id", sess.FileID))
		if err := os.Remove(sess.TempPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("sweep delete failed", zap.String("path", sess.TempPath), zap.Error(err))
		}
		sess.mu.Lock()
		dbID := sess.dbID
		sess.mu.Unlock()
		if err := j.srv.meta.UpdateFileStatus(context.Background(), dbID, "stopped", ""); err != nil {
			logging.Warn("sweep metadata update failed", zap.Int64("db_id", dbID), zap.Error(err))
		}
		j.srv.removeUpload(sess.FileID)
		return true
	})

	j.srv.reg.downloads.Range(func(key, value any) bool {
		sess := value.(*DownloadSession)
		st := sess.Status()
		stale := (st == DownloadPaused || st == DownloadErrored) && sess.idleSince().Before(cutoff)
		if !stale {
			live[filepath.Base(sess.TempPath)] = struct{}{}
			return true
		}

		logging.Info("sweeping stale download", zap.String("session_id", sess.SessionID))
		if err := os.Remove(sess.TempPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("sweep delete failed", zap.String("path", sess.TempPath), zap.Error(err))
		}
		j.srv.removeDownload(sess.SessionID)
		return true
	})

	j.sweepOrphans(live, cutoff)
}

// sweepOrphans deletes staging files old enough to be stale that no
// session in the registry references.
func (j *janitor) sweepOrphans(live map[string]struct{}, cutoff time.Time) {
	entries, err := os.ReadDir(j.srv.staging.Dir())
	if err != nil {
		logging.Warn("orphan scan failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".part") && !strings.HasSuffix(name, ".download")) {
			continue
		}
		if _, ok := live[name]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.srv.staging.Dir(), name)
		if err := os.Remove(path); err != nil {
			logging.Warn("orphan delete failed", zap.String("path", path), zap.Error(err))
		} else {
			logging.Info("deleted orphaned staging file", zap.String("path", path))
		}
	}
}
