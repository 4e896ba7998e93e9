package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lqhuy/ferry/internal/auth"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ferry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("zero user id")
	}

	if _, err := s.CreateUser(ctx, "alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate create: %v", err)
	}
	if _, err := s.CreateUser(ctx, "", "x"); err == nil {
		t.Fatal("empty username accepted")
	}
}

func TestIssueTokenAndVerify(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	token, err := s.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	u, err := s.VerifyToken(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != uid || u.Username != "alice" {
		t.Fatalf("verified user = %+v", u)
	}

	if _, err := s.VerifyToken(ctx, "bogus"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("bogus token: %v", err)
	}
	if _, err := s.IssueToken(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hunter2"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser(ctx, "robot", ""); err != nil {
		t.Fatal(err)
	}

	u, err := s.Authenticate(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" {
		t.Fatalf("user = %+v", u)
	}

	if _, err := s.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
	if _, err := s.Authenticate(ctx, "robot", "x"); err == nil {
		t.Fatal("password auth on token-only account should fail")
	}
}

func TestListUsersOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zoe", "alice", "mallory"} {
		if _, err := s.CreateUser(ctx, name, ""); err != nil {
			t.Fatal(err)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users", len(users))
	}
	for i, want := range []string{"alice", "mallory", "zoe"} {
		if users[i].Username != want {
			t.Fatalf("users[%d] = %q, want %q", i, users[i].Username, want)
		}
	}
}

func TestFileLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	id, err := s.InsertFile(ctx, FileRecord{
		FileID:       "abc123",
		Name:         "notes.txt",
		OriginalName: "notes.txt",
		Size:         42,
		UserID:       uid,
		Uploader:     "alice",
		FolderID:     "inbox",
		Status:       "uploading",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetFile(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Status != "uploading" || rec.Size != 42 || rec.Uploader != "alice" {
		t.Fatalf("record = %+v", rec)
	}

	if err := s.UpdateFileStatus(ctx, id, "completed", "/files/notes.txt"); err != nil {
		t.Fatal(err)
	}
	rec, err = s.GetFile(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "completed" || rec.Path != "/files/notes.txt" {
		t.Fatalf("after update = %+v", rec)
	}

	missing, err := s.GetFile(ctx, id+100)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("missing id returned %+v", missing)
	}
}

func TestLookupFileByIDReturnsLatestRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	insert := func(status string) int64 {
		t.Helper()
		id, err := s.InsertFile(ctx, FileRecord{
			FileID: "dup-1", Name: "d.bin", OriginalName: "d.bin",
			UserID: uid, Uploader: "alice", Status: status,
		})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	insert("error")
	second := insert("uploading")
	if err := s.UpdateFileStatus(ctx, second, "completed", "/files/d.bin"); err != nil {
		t.Fatal(err)
	}

	rec, err := s.LookupFileByID(ctx, "dup-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Status != "completed" || rec.Path != "/files/d.bin" {
		t.Fatalf("latest record = %+v", rec)
	}

	none, err := s.LookupFileByID(ctx, "no-such-file")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatalf("unknown file id returned %+v", none)
	}
}
