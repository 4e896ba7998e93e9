package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBarUpdateDrawsLine(t *testing.T) {
	out := &bytes.Buffer{}
	b := &Bar{Out: out}
	b.Update(50, 100)
	line := out.String()
	if !strings.Contains(line, "50%") {
		t.Fatalf("expected 50%% in %q", line)
	}
	if !strings.HasPrefix(line, "\r") {
		t.Fatalf("expected carriage-return redraw, got %q", line)
	}
}

func TestBarFinalUpdateBypassesThrottle(t *testing.T) {
	out := &bytes.Buffer{}
	b := &Bar{Out: out}
	b.Update(1, 100)
	before := out.Len()
	// Immediately after a draw the throttle suppresses intermediate
	// updates but never the final one.
	b.Update(2, 100)
	if out.Len() != before {
		t.Fatalf("expected throttled redraw to be suppressed")
	}
	b.Update(100, 100)
	if !strings.Contains(out.String(), "100%") {
		t.Fatalf("expected final redraw, got %q", out.String())
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, c := range cases {
		if got := FormatBytes(c.in); got != c.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{150 * time.Second, "2m30s"},
		{3900 * time.Second, "1h05m00s"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
