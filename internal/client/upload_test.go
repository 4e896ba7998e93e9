package client

import (
	"strings"
	"testing"

	"github.com/lqhuy/ferry/internal/protocol"
)

func TestApplyProgressAdvancesOffsetMonotonically(t *testing.T) {
	u := &Upload{FileID: "f1", Size: 100}
	offset, paused := uint64(10), false

	p := protocol.NewProgress("f1", 40, 100)
	done, _, err := u.apply(&p, &offset, &paused)
	if done || err != nil {
		t.Fatalf("progress: done=%v err=%v", done, err)
	}
	if offset != 40 {
		t.Fatalf("offset = %d, want 40", offset)
	}

	// Throttled progress can lag chunks already sent; the send cursor
	// never rewinds on it.
	stale := protocol.NewProgress("f1", 20, 100)
	if _, _, err := u.apply(&stale, &offset, &paused); err != nil {
		t.Fatal(err)
	}
	if offset != 40 {
		t.Fatalf("offset rewound to %d on stale progress", offset)
	}
}

func TestApplyPausedRejectParksDriver(t *testing.T) {
	u := &Upload{FileID: "f1", Size: 100}
	offset, paused := uint64(50), false

	reject := &protocol.ErrorEvent{Error: "session is paused"}
	done, _, err := u.apply(reject, &offset, &paused)
	if done || err != nil {
		t.Fatalf("paused reject: done=%v err=%v", done, err)
	}
	if !paused {
		t.Fatal("driver did not park on paused reject")
	}

	fatal := &protocol.ErrorEvent{Error: "forward failed: downstream unavailable"}
	done, _, err = u.apply(fatal, &offset, &paused)
	if !done || err == nil || !strings.Contains(err.Error(), "downstream unavailable") {
		t.Fatalf("fatal error: done=%v err=%v", done, err)
	}
}
