package realdb

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

// DBTX is the subset of *pgxpool.Pool the backend uses. pgxmock pools
// satisfy it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Connect opens a connection pool for dsn. The pool connects lazily, so an
// unreachable database surfaces through Health rather than here.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[realdb.Connect] parse postgres config")
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[realdb.Connect] create pool")
	}
	return pool, nil
}

// EnsureSchema creates the tables the backend needs if they are missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return classify("[realdb.EnsureSchema]", err)
	}
	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

// classify tags a database error. Errors that carry a SQLSTATE came from a
// reachable server; anything else means the database could not be reached.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr), strings.Contains(err.Error(), "SQLSTATE"):
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return autherrors.Wrap(autherrors.KindTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return autherrors.Wrap(autherrors.KindUnavailable, op, err)
}
