package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// Store owns the sqlite database backing all three tiers.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database on a single connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// write transactions take the lock up front so concurrent rotations for one
// owner serialise instead of failing on upgrade
func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)&_txlock=immediate"
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations handles schema changes for existing databases
func (s *Store) runMigrations() error {
	if !s.columnExists("episodes", "metadata") {
		if _, err := s.db.Exec("ALTER TABLE episodes ADD COLUMN metadata TEXT NOT NULL DEFAULT '{}'"); err != nil {
			return err
		}
	}

	if !s.columnExists("working_entries", "bootstrap") {
		if _, err := s.db.Exec("ALTER TABLE working_entries ADD COLUMN bootstrap INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
		// older files marked the placeholder only by its empty text
		if _, err := s.db.Exec("UPDATE working_entries SET bootstrap = 1 WHERE text = '' AND history_order = 1"); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) bool {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// Backup writes a consistent copy of the database to dest.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// deleteIn runs "DELETE FROM table WHERE column IN (ids)" and returns the
// affected row count.
func deleteIn(ctx context.Context, ex execer, table, column string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", table, column, placeholders)
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
