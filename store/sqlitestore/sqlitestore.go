package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ store.Store = (*Store)(nil)

// Store persists session values in a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Open] create directory")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Open] open database")
	}
	// A single writer keeps batched writes from racing on the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitestore.Open] ping database")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("sqlite session store ready")
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return errors.Wrap(err, "[sqlitestore.migrate] create schema_migrations")
	}

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.migrate] open migrations")
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.migrate] read migrations")
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var applied int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`, name).Scan(&applied); err != nil {
			return errors.Wrapf(err, "[sqlitestore.migrate] check %s", name)
		}
		if applied > 0 {
			continue
		}
		body, err := fs.ReadFile(sub, name)
		if err != nil {
			return errors.Wrapf(err, "[sqlitestore.migrate] read %s", name)
		}
		if _, err := s.db.Exec(string(body)); err != nil {
			return errors.Wrapf(err, "[sqlitestore.migrate] apply %s", name)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (filename) VALUES (?)`, name); err != nil {
			return errors.Wrapf(err, "[sqlitestore.migrate] record %s", name)
		}
	}
	return nil
}

// Write upserts every entry inside one transaction.
func (s *Store) Write(ctx context.Context, entries map[store.Key]string) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.Write]", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.Write]", err)
	}
	defer stmt.Close()

	for k, v := range entries {
		if _, err := stmt.ExecContext(ctx, string(k), v); err != nil {
			return autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.Write]", errors.Wrapf(err, "key %s", k))
		}
	}
	if err := tx.Commit(); err != nil {
		return autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.Write]", err)
	}
	return nil
}

func (s *Store) ReadAll(ctx context.Context, keys []store.Key) (map[store.Key]*string, error) {
	out := make(map[store.Key]*string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = string(k)
		out[k] = nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN (`+placeholders(len(keys))+`)`, args...)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.ReadAll]", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.ReadAll]", err)
		}
		out[store.Key(k)] = &v
	}
	if err := rows.Err(); err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.ReadAll]", err)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, keys []store.Key) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = string(k)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (`+placeholders(len(keys))+`)`, args...); err != nil {
		return autherrors.Wrap(autherrors.KindStorage, "[sqlitestore.Clear]", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
