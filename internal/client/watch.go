package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lqhuy/ferry/internal/logging"
)

const (
	// settleDelay is how long a file must go without writes before the
	// watcher considers it complete and uploads it.
	settleDelay = 2 * time.Second

	settleScanInterval = 500 * time.Millisecond

	// watchWorkers bounds concurrent uploads from one watched directory.
	watchWorkers = 3
)

// WatchResult reports one finished upload from a watched directory.
type WatchResult struct {
	Path      string
	FinalPath string
	Err       error
}

// Watch uploads every file that appears in dir until ctx is cancelled.
// Files are uploaded once they stop changing for settleDelay; partial
// writes and editors that write in bursts never trigger early uploads.
// Results stream to onResult from worker goroutines.
func (c *Client) Watch(ctx context.Context, dir, folderID string, chunkSize int, onResult func(WatchResult)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logging.Info("watching directory", zap.String("dir", dir))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(watchWorkers)

	var mu sync.Mutex
	pending := make(map[string]time.Time) // path -> last write

	ticker := time.NewTicker(settleScanInterval)
	defer ticker.Stop()

	touch := func(path string) {
		name := filepath.Base(path)
		if strings.HasPrefix(name, ".") {
			return
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		mu.Lock()
		pending[path] = time.Now()
		mu.Unlock()
	}

	for {
		select {
		case <-gctx.Done():
			watcher.Close()
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return g.Wait()
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				touch(ev.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return g.Wait()
			}
			logging.Warn("filesystem watcher error", zap.Error(err))

		case <-ticker.C:
			cutoff := time.Now().Add(-settleDelay)
			mu.Lock()
			var ready []string
			for path, last := range pending {
				if last.Before(cutoff) {
					ready = append(ready, path)
					delete(pending, path)
				}
			}
			mu.Unlock()

			for _, path := range ready {
				g.Go(func() error {
					u, err := c.NewUpload(path, folderID, chunkSize, nil)
					if err != nil {
						onResult(WatchResult{Path: path, Err: err})
						return nil
					}
					final, err := u.Run(gctx)
					onResult(WatchResult{Path: path, FinalPath: final, Err: err})
					return nil
				})
			}
		}
	}
}
