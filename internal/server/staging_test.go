package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStagingPaths(t *testing.T) {
	st, err := NewStaging(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	part := st.PartPath("abc123", "notes.txt")
	if filepath.Dir(part) != st.Dir() || filepath.Base(part) != "abc123_notes.txt.part" {
		t.Fatalf("part path = %q", part)
	}

	dl := st.DownloadPath("sess-1", "report.pdf")
	if !strings.HasSuffix(dl, "sess-1_report.pdf.download") {
		t.Fatalf("download path = %q", dl)
	}
}

func TestStagingSizeAndAppend(t *testing.T) {
	st, err := NewStaging(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path := st.PartPath("f1", "a.bin")

	if got := st.Size(path); got != 0 {
		t.Fatalf("missing file size = %d", got)
	}

	for _, chunk := range []string{"hello", " world"} {
		f, err := st.OpenAppend(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.WriteString(chunk); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
	}

	if got := st.Size(path); got != uint64(len("hello world")) {
		t.Fatalf("size after appends = %d", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Fatalf("content = %q", data)
	}
}

func TestStagingHasRoom(t *testing.T) {
	st, err := NewStaging(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasRoom(1) {
		t.Fatal("one byte should always fit in a temp dir")
	}
}
