// Package store bundles the SQLite-backed user and file-metadata store the
// relay consults through the auth.Verifier and server.MetadataStore
// interfaces. The relay itself treats both as external collaborators; any
// other implementation may be substituted without touching the transfer
// core.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/lqhuy/ferry/internal/auth"
	"github.com/lqhuy/ferry/internal/crypto"
	"github.com/lqhuy/ferry/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrUserExists is returned when creating a user whose name is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned for operations on unknown usernames.
	ErrUserNotFound = errors.New("user not found")
)

// UserRecord describes one account for administrative listings.
type UserRecord struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// FileRecord is one metadata row tracking a transferred file.
type FileRecord struct {
	ID           int64
	FileID       string
	Name         string
	OriginalName string
	Size         uint64
	UserID       int64
	Uploader     string
	FolderID     string
	Status       string
	Path         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is a SQLite-backed implementation of the relay's auth and metadata
// interfaces plus the administrative operations used by the ferryd CLI.
type Store struct {
	db *sql.DB

	// Prepared statements for repeated queries, grouped by domain.
	userStmts userStatements
	fileStmts fileStatements
}

type userStatements struct {
	verifyToken, getByName, insertUser, insertToken, list *sql.Stmt
}

type fileStatements struct {
	insert, updateStatus, get, lookup *sql.Stmt
}

// Open opens the database at dbPath, applies migrations, and prepares all
// repeated statements. Use ":memory:" for tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if err := setPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.prepareStatements(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	logging.Debug("store ready", zap.String("path", dbPath))
	return s, nil
}

// setPragmas configures SQLite for WAL mode and concurrent access.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

// runMigrations applies all pending schema migrations.
func runMigrations(ctx context.Context, db *sql.DB) error {
	// Strip the "migrations/" prefix so goose sees files at the FS root.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		logging.Debug("applied migration",
			zap.String("source", r.Source.Path),
			zap.Int64("duration_ms", r.Duration.Milliseconds()))
	}
	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	prep := func(q string) (*sql.Stmt, error) { return s.db.PrepareContext(ctx, q) }

	var err error
	if s.userStmts.verifyToken, err = prep(sqlVerifyToken); err != nil {
		return err
	}
	if s.userStmts.getByName, err = prep(sqlGetUserByName); err != nil {
		return err
	}
	if s.userStmts.insertUser, err = prep(sqlInsertUser); err != nil {
		return err
	}
	if s.userStmts.insertToken, err = prep(sqlInsertToken); err != nil {
		return err
	}
	if s.userStmts.list, err = prep(sqlListUsers); err != nil {
		return err
	}
	if s.fileStmts.insert, err = prep(sqlInsertFile); err != nil {
		return err
	}
	if s.fileStmts.updateStatus, err = prep(sqlUpdateFileStatus); err != nil {
		return err
	}
	if s.fileStmts.get, err = prep(sqlGetFile); err != nil {
		return err
	}
	if s.fileStmts.lookup, err = prep(sqlLookupFile); err != nil {
		return err
	}
	return nil
}

// Close releases prepared statements and closes the database.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.userStmts.verifyToken, s.userStmts.getByName, s.userStmts.insertUser,
		s.userStmts.insertToken, s.userStmts.list,
		s.fileStmts.insert, s.fileStmts.updateStatus, s.fileStmts.get,
		s.fileStmts.lookup,
	}
	for _, st := range stmts {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.db.Close()
}

// --- SQL query constants ---

const (
	sqlVerifyToken = `SELECT u.id, u.username FROM tokens t
		JOIN users u ON u.id = t.user_id WHERE t.token = ?`

	sqlGetUserByName = `SELECT id, username, password_hash FROM users WHERE username = ?`

	sqlInsertUser = `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`

	sqlInsertToken = `INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)`

	sqlListUsers = `SELECT id, username, created_at FROM users ORDER BY username`

	sqlInsertFile = `INSERT INTO files
		(file_id, name, original_name, size, user_id, uploader, folder_id, status, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpdateFileStatus = `UPDATE files SET status = ?, path = ?, updated_at = ? WHERE id = ?`

	sqlGetFile = `SELECT id, file_id, name, original_name, size, user_id, uploader,
		folder_id, status, path, created_at, updated_at FROM files WHERE id = ?`

	sqlLookupFile = `SELECT status, path FROM files WHERE file_id = ?
		ORDER BY id DESC LIMIT 1`
)

// VerifyToken implements auth.Verifier.
func (s *Store) VerifyToken(ctx context.Context, token string) (auth.User, error) {
	var u auth.User
	err := s.userStmts.verifyToken.QueryRowContext(ctx, token).Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("verify token: %w", err)
	}
	return u, nil
}

// CreateUser inserts a new account. The password may be empty for
// token-only accounts; otherwise it is stored as a bcrypt hash.
func (s *Store) CreateUser(ctx context.Context, username, password string) (int64, error) {
	if username == "" {
		return 0, fmt.Errorf("username is required")
	}

	var existing int64
	err := s.userStmts.getByName.QueryRowContext(ctx, username).Scan(&existing, new(string), new(string))
	if err == nil {
		return 0, ErrUserExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup user: %w", err)
	}

	hash := ""
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return 0, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	res, err := s.userStmts.insertUser.ExecContext(ctx, username, hash, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}
	return id, nil
}

// Authenticate checks a username/password pair, the flow the downstream
// web application uses before it mints a session token.
func (s *Store) Authenticate(ctx context.Context, username, password string) (auth.User, error) {
	var (
		u    auth.User
		hash string
	)
	err := s.userStmts.getByName.QueryRowContext(ctx, username).Scan(&u.ID, &u.Username, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if hash == "" {
		return auth.User{}, fmt.Errorf("user %q has no password set", username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return auth.User{}, auth.ErrInvalidToken
	}
	return u, nil
}

// IssueToken mints and stores a new bearer token for the named user.
func (s *Store) IssueToken(ctx context.Context, username string) (string, error) {
	var (
		id   int64
		name string
		hash string
	)
	err := s.userStmts.getByName.QueryRowContext(ctx, username).Scan(&id, &name, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	token, err := crypto.GenerateToken(nil)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if _, err := s.userStmts.insertToken.ExecContext(ctx, token, id, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

// ListUsers returns all accounts ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.userStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []UserRecord
	for rows.Next() {
		var u UserRecord
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertFile records a new transfer and returns its database id.
func (s *Store) InsertFile(ctx context.Context, rec FileRecord) (int64, error) {
	now := time.Now().UTC()
	res, err := s.fileStmts.insert.ExecContext(ctx,
		rec.FileID, rec.Name, rec.OriginalName, int64(rec.Size),
		rec.UserID, rec.Uploader, rec.FolderID, rec.Status, rec.Path, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("file id: %w", err)
	}
	return id, nil
}

// UpdateFileStatus moves a file record to a new status, optionally
// recording the final destination path.
func (s *Store) UpdateFileStatus(ctx context.Context, id int64, status, path string) error {
	if _, err := s.fileStmts.updateStatus.ExecContext(ctx, status, path, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update file %d: %w", id, err)
	}
	return nil
}

// GetFile fetches one file record. A missing id yields (nil, nil).
func (s *Store) GetFile(ctx context.Context, id int64) (*FileRecord, error) {
	var (
		rec  FileRecord
		size int64
	)
	err := s.fileStmts.get.QueryRowContext(ctx, id).Scan(
		&rec.ID, &rec.FileID, &rec.Name, &rec.OriginalName, &size,
		&rec.UserID, &rec.Uploader, &rec.FolderID, &rec.Status, &rec.Path,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %d: %w", id, err)
	}
	rec.Size = uint64(size)
	return &rec, nil
}

// LookupFileByID resolves the latest record for a wire file id. Retried
// uploads insert one row per attempt; the newest one is the verdict that
// matters. A missing file id yields (nil, nil).
func (s *Store) LookupFileByID(ctx context.Context, fileID string) (*FileRecord, error) {
	rec := FileRecord{FileID: fileID}
	err := s.fileStmts.lookup.QueryRowContext(ctx, fileID).Scan(&rec.Status, &rec.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup file %s: %w", fileID, err)
	}
	return &rec, nil
}
