// Package journal records every submission sent to the distribution backend
// in a local SQLite database so operators can audit what was PUT and when.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Submission statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
	StatusDryRun = "dry_run"
)

// defaultListLimit caps List when the filter sets no limit.
const defaultListLimit = 50

// ErrNotFound is returned by Get for an unknown entry id.
var ErrNotFound = errors.New("journal: entry not found")

const (
	sqlInsertEntry = `INSERT INTO submissions
		(id, created_at, kind, record_id, session_id, employee_id, status,
		 payload, response, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectEntries = `SELECT id, created_at, kind, record_id, session_id,
		employee_id, status, payload, response, error
		FROM submissions`
)

// Entry is one journaled submission. Payload and Response hold JSON text.
type Entry struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Kind       string    `json:"kind"`
	RecordID   string    `json:"record_id"`
	SessionID  string    `json:"session_id,omitempty"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Status     string    `json:"status"`
	Payload    string    `json:"payload"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Kind     string
	RecordID string
	Status   string
	Limit    int
}

// Store is the journal database. All writes go through one connection.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the journal at dbPath and applies pending
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// migrate brings the schema up to date with the embedded goose migrations.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("journal: migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: migrating: %w", err)
	}

	for _, r := range results {
		logger.Info("journal migration applied",
			slog.String("source", r.Source.Path),
			slog.Int64("version", r.Source.Version),
		)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e, assigning a fresh id and timestamp when unset, and
// returns the stored entry.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.nowFunc()
	}

	e.CreatedAt = e.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, sqlInsertEntry,
		e.ID, e.CreatedAt.UnixNano(), e.Kind, e.RecordID,
		nullString(e.SessionID), nullString(e.EmployeeID), e.Status,
		e.Payload, nullString(e.Response), nullString(e.Error),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: recording %s %s: %w", e.Kind, e.RecordID, err)
	}

	return e, nil
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	rows, err := s.query(ctx, sqlSelectEntries+" WHERE id = ?", id)
	if err != nil {
		return Entry{}, err
	}

	if len(rows) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return rows[0], nil
}

// List returns entries matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)

	for col, v := range map[string]string{"kind": f.Kind, "record_id": f.RecordID, "status": f.Status} {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}

	q := sqlSelectEntries
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	return s.query(ctx, q, args...)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: querying: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e                                    Entry
			created                              int64
			session, employee, response, errText sql.NullString
		)

		if err := rows.Scan(&e.ID, &created, &e.Kind, &e.RecordID, &session,
			&employee, &e.Status, &e.Payload, &response, &errText); err != nil {
			return nil, fmt.Errorf("journal: scanning entry: %w", err)
		}

		e.CreatedAt = time.Unix(0, created).UTC()
		e.SessionID = session.String
		e.EmployeeID = employee.String
		e.Response = response.String
		e.Error = errText.String
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating entries: %w", err)
	}

	return out, nil
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
