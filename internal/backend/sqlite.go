package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteTimeLayout = time.RFC3339Nano

// SQLiteBackend persists documents in a single table. Change notifications
// are local to the process that owns the database.
type SQLiteBackend struct {
	db     *sqlx.DB
	mu     sync.Mutex
	broker *broker
	now    func() time.Time
}

type documentRow struct {
	Path      string `db:"path"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

func NewSQLiteBackend(db *sqlx.DB, buffer int) (*SQLiteBackend, error) {
	if db == nil {
		return nil, errors.New("backend: nil db")
	}
	// one connection keeps the in-memory database shared and writes serial
	db.SetMaxOpenConns(1)
	return &SQLiteBackend{db: db, broker: newBroker(buffer), now: time.Now}, nil
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(path string, buffer int) (*SQLiteBackend, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	b, err := NewSQLiteBackend(db, buffer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (s *SQLiteBackend) Read(ctx context.Context, path string, out any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	var value string
	if err := s.db.GetContext(ctx, &value, `SELECT value FROM documents WHERE path = ?`, clean); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", clean, err)
	}
	return decode(json.RawMessage(value), out)
}

func (s *SQLiteBackend) Write(ctx context.Context, path string, value any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(ctx, s.db, clean, raw); err != nil {
		return err
	}
	s.broker.publish(Snapshot{Path: clean, Value: raw})
	return nil
}

func (s *SQLiteBackend) Update(ctx context.Context, path string, fields map[string]any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.GetContext(ctx, &current, `SELECT value FROM documents WHERE path = ?`, clean)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s: %w", clean, err)
	}
	merged, err := mergeFields(json.RawMessage(current), fields)
	if err != nil {
		return err
	}
	if err := s.put(ctx, tx, clean, merged); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	s.broker.publish(Snapshot{Path: clean, Value: merged})
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, path string) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.selectUnder(ctx, clean)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, row.Path); err != nil {
			return fmt.Errorf("delete %s: %w", row.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	for _, row := range rows {
		s.broker.publish(Snapshot{Path: row.Path})
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	clean, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}
	rows, err := s.selectUnder(ctx, clean)
	if err != nil {
		return nil, err
	}
	return rowsToDocs(rows), nil
}

func (s *SQLiteBackend) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.selectUnder(ctx, clean)
	if err != nil {
		return nil, err
	}
	return s.broker.add(ctx, clean, snapshotsOf(rowsToDocs(rows)))
}

func (s *SQLiteBackend) Close() error {
	s.broker.close()
	return s.db.Close()
}

func (s *SQLiteBackend) put(ctx context.Context, exec sqlx.ExecerContext, path string, raw json.RawMessage) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO documents (path, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, string(raw), s.now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// selectUnder returns rows at or below root ordered by path. LIKE is case
// insensitive in SQLite, so matches are filtered again in Go.
func (s *SQLiteBackend) selectUnder(ctx context.Context, root string) ([]documentRow, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT path, value, updated_at FROM documents
		WHERE path = ? OR path LIKE ? ESCAPE '\'
		ORDER BY path`,
		root, escapeLike(root)+"/%",
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	out := rows[:0]
	for _, row := range rows {
		if under(row.Path, root) {
			out = append(out, row)
		}
	}
	return out, nil
}

func rowsToDocs(rows []documentRow) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		out[row.Path] = json.RawMessage(row.Value)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
