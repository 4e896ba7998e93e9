package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilenameAcceptsOrdinaryNames(t *testing.T) {
	names := []string{
		"notes.txt",
		"report.pdf",
		"backup-2026_08.tar.gz",
		"file with spaces.txt",
		"ARCHIVE.ZIP",
		"数据.csv",   // Chinese
		"отчёт.md", // Cyrillic
	}

	for _, name := range names {
		got, err := sanitizeFilename(name)
		if err != nil {
			t.Errorf("rejected valid name %q: %v", name, err)
			continue
		}
		if got != name {
			t.Errorf("rewrote valid name: %q -> %q", name, got)
		}
	}
}

func TestSanitizeFilenameRejectsHostileNames(t *testing.T) {
	cases := map[string]string{
		"":                       "empty",
		".":                      "dot",
		"..":                     "dotdot",
		"..secret":               "dotdot prefix",
		"a..b":                   "dotdot infix",
		"../../../etc/passwd":    "traversal",
		"/etc/passwd":            "absolute path",
		"dir/nested.txt":         "slash",
		"dir\\nested.txt":        "backslash",
		"a\x00b":                 "null byte",
		"bell\x07.txt":           "control char",
		"del\x7f.txt":            "DEL",
		"   ":                    "whitespace only",
		"\r\n\t":                 "whitespace only",
		strings.Repeat("x", 256): "too long",
	}

	for name, reason := range cases {
		if got, err := sanitizeFilename(name); err == nil {
			t.Errorf("accepted hostile name (%s): %q -> %q", reason, name, got)
		}
	}
}

func TestFindUniqueFilenameAppendsCounter(t *testing.T) {
	dir := t.TempDir()

	first := findUniqueFilename(dir, "notes.txt")
	if first != filepath.Join(dir, "notes.txt") {
		t.Fatalf("fresh dir should keep the name, got %q", first)
	}

	touch(t, filepath.Join(dir, "notes.txt"))
	second := findUniqueFilename(dir, "notes.txt")
	if second != filepath.Join(dir, "notes_1.txt") {
		t.Fatalf("first collision = %q, want notes_1.txt", second)
	}

	touch(t, second)
	third := findUniqueFilename(dir, "notes.txt")
	if third != filepath.Join(dir, "notes_2.txt") {
		t.Fatalf("second collision = %q, want notes_2.txt", third)
	}
}

func TestFindUniqueFilenameFallsBackOnBadName(t *testing.T) {
	dir := t.TempDir()

	got := findUniqueFilename(dir, "../escape.txt")
	base := filepath.Base(got)
	if !strings.HasPrefix(base, "download_") {
		t.Fatalf("expected timestamp fallback, got %q", base)
	}
	if filepath.Dir(got) != dir {
		t.Fatalf("fallback escaped the directory: %q", got)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
}

func FuzzSanitizeFilename(f *testing.F) {
	seeds := []string{
		"notes.txt",
		"../../../etc/passwd",
		"a\x00b.txt",
		".",
		"..",
		strings.Repeat("a", 300),
		"dir/nested.txt",
		"dir\\nested.txt",
		"   ",
		"\r\n\t",
		"bell\x07.txt",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		got, err := sanitizeFilename(input)
		if err != nil {
			return
		}

		// Whatever passes must be a safe basename.
		if strings.ContainsAny(got, "/\\") || strings.Contains(got, "..") || strings.Contains(got, "\x00") {
			t.Errorf("accepted unsafe name: input=%q got=%q", input, got)
		}
		if got == "" || got == "." || strings.TrimSpace(got) == "" {
			t.Errorf("accepted degenerate name: input=%q got=%q", input, got)
		}
		if len(got) > 255 {
			t.Errorf("accepted overlong name: input=%q len=%d", input, len(got))
		}
		for _, r := range got {
			if r < 32 || r == 0x7F {
				t.Errorf("accepted control character: input=%q got=%q", input, got)
				break
			}
		}
		if filepath.Base(got) != got {
			t.Errorf("accepted non-basename: input=%q got=%q", input, got)
		}
	})
}
