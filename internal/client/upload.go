package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/protocol"
)

// ErrStopped reports that an upload ended because Stop was called.
var ErrStopped = errors.New("upload stopped")

// ProgressFunc receives transfer advancement. Called from the driver
// goroutine; keep it cheap.
type ProgressFunc func(done, total uint64)

// Upload drives one file through the relay's upload state machine. Run owns
// the session; Pause, Resume and Stop may be called from other goroutines
// and take effect through the relay's acks.
type Upload struct {
	c *Client

	FileID   string
	FileName string
	Size     uint64

	path       string
	folderID   string
	chunkSize  int
	onProgress ProgressFunc

	events chan protocol.ServerMessage
}

// NewUpload prepares an upload for a local file. The file ID is derived
// from the absolute path and size, so re-running the same upload resumes
// the relay-side session instead of starting over.
func (c *Client) NewUpload(path, folderID string, chunkSize int, onProgress ProgressFunc) (*Upload, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, ferrors.FileNotFoundError(path, err)
	}
	if info.IsDir() {
		return nil, ferrors.FileNotFoundError(path, fmt.Errorf("%s is a directory", path))
	}

	if chunkSize < protocol.MinChunkSize || chunkSize > protocol.MaxChunkSize {
		chunkSize = protocol.DefaultChunkSize
	}

	u := &Upload{
		c:          c,
		FileID:     deriveFileID(abs, info.Size()),
		FileName:   filepath.Base(abs),
		Size:       uint64(info.Size()),
		path:       abs,
		folderID:   folderID,
		chunkSize:  chunkSize,
		onProgress: onProgress,
	}
	u.events = c.registerUpload(u.FileID)
	return u, nil
}

// deriveFileID hashes identity rather than content: resuming must not
// require reading the whole file first.
func deriveFileID(absPath string, size int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", absPath, size)))
	return hex.EncodeToString(sum[:16])
}

// Run performs the transfer and blocks until the relay confirms forwarding,
// the session is stopped, or something fails. It returns the destination
// path reported by the downstream receiver.
func (u *Upload) Run(ctx context.Context) (string, error) {
	defer u.c.unregisterUpload(u.FileID)

	f, err := os.Open(u.path)
	if err != nil {
		return "", ferrors.FileNotFoundError(u.path, err)
	}
	defer f.Close()

	if err := u.c.send(protocol.NewStartFrame(u.FileID, u.FileName, u.Size, u.folderID)); err != nil {
		return "", err
	}

	offset, err := u.awaitStartAck(ctx)
	if err != nil {
		return "", err
	}
	u.report(offset)

	buf := make([]byte, u.chunkSize)
	paused := false

	for {
		// Apply everything the relay has already told us before
		// committing the next chunk.
	drain:
		for {
			select {
			case msg, ok := <-u.events:
				if !ok {
					return "", u.connErr()
				}
				done, path, err := u.apply(msg, &offset, &paused)
				if done || err != nil {
					return path, err
				}
			default:
				break drain
			}
		}

		if paused {
			select {
			case msg, ok := <-u.events:
				if !ok {
					return "", u.connErr()
				}
				done, path, err := u.apply(msg, &offset, &paused)
				if done || err != nil {
					return path, err
				}
			case <-ctx.Done():
				return "", ctx.Err()
			case <-u.c.done:
				return "", u.connErr()
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		if offset >= u.Size {
			return u.complete(ctx, &offset, &paused)
		}

		n, err := f.ReadAt(buf, int64(offset))
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read %s at %d: %w", u.path, offset, err)
		}
		if n == 0 {
			return "", fmt.Errorf("file %s truncated under upload at offset %d", u.path, offset)
		}
		if err := u.c.send(protocol.NewChunkFrame(u.FileID, offset, buf[:n])); err != nil {
			return "", err
		}
		offset += uint64(n)
	}
}

// complete asks the relay to forward and waits for the verdict. The relay
// may still route a pause through here; the loop keeps applying events
// until a terminal one arrives.
func (u *Upload) complete(ctx context.Context, offset *uint64, paused *bool) (string, error) {
	if err := u.c.send(protocol.NewCompleteFrame(u.FileID)); err != nil {
		return "", err
	}
	for {
		select {
		case msg, ok := <-u.events:
			if !ok {
				return "", u.connErr()
			}
			done, path, err := u.apply(msg, offset, paused)
			if err != nil {
				return "", err
			}
			if done {
				return path, nil
			}
			// A rewind while completing means the relay disagrees
			// about the final byte count; resume the chunk loop.
			if *offset < u.Size {
				return "", fmt.Errorf("relay rewound to %d after completion request", *offset)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		case <-u.c.done:
			return "", u.connErr()
		}
	}
}

// apply folds one server frame into the driver's view of the session.
// done reports a terminal frame; path carries the forwarded location.
func (u *Upload) apply(msg protocol.ServerMessage, offset *uint64, paused *bool) (done bool, path string, err error) {
	switch m := msg.(type) {
	case *protocol.Progress:
		// The relay's count is authoritative, but chunks already in
		// flight sit past it; only ever advance the send cursor here.
		// Rewinds travel on offset-mismatch and pause-ack.
		if m.Offset > *offset {
			*offset = m.Offset
		}
		u.report(m.Offset)
	case *protocol.OffsetMismatch:
		*offset = m.Expected
	case *protocol.PauseAck:
		*paused = true
		*offset = m.Offset
	case *protocol.ResumeAck:
		*paused = false
		*offset = m.Offset
	case *protocol.StopAck:
		return true, "", ErrStopped
	case *protocol.CompleteAck:
		u.report(u.Size)
		return true, m.FilePath, nil
	case *protocol.ErrorEvent:
		// Chunks already on the wire race a pause; the reject is benign
		// and the pause-ack that follows carries the rewind offset.
		if m.Error == "session is paused" {
			*paused = true
			return false, "", nil
		}
		return true, "", fmt.Errorf("relay: %s", m.Error)
	}
	return false, "", nil
}

func (u *Upload) awaitStartAck(ctx context.Context) (uint64, error) {
	for {
		select {
		case msg, ok := <-u.events:
			if !ok {
				return 0, u.connErr()
			}
			switch m := msg.(type) {
			case *protocol.StartAck:
				return m.Offset, nil
			case *protocol.ErrorEvent:
				return 0, fmt.Errorf("relay: %s", m.Error)
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-u.c.done:
			return 0, u.connErr()
		}
	}
}

func (u *Upload) report(done uint64) {
	if u.onProgress != nil {
		u.onProgress(done, u.Size)
	}
}

func (u *Upload) connErr() error {
	if err := u.c.Err(); err != nil {
		return err
	}
	return ferrors.ConnectionError("relay", errors.New("connection closed"))
}

// Pause asks the relay to suspend the session. Run keeps draining events
// and parks once the pause-ack arrives.
func (u *Upload) Pause() error { return u.c.send(protocol.NewPauseFrame(u.FileID)) }

// Resume reactivates a paused session.
func (u *Upload) Resume() error { return u.c.send(protocol.NewResumeFrame(u.FileID)) }

// Stop aborts the session; the relay discards the staged bytes.
func (u *Upload) Stop() error { return u.c.send(protocol.NewStopFrame(u.FileID)) }
