package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"sprintbook/internal/db"
)

// Repo is the SQL store. Methods ending in Tx run inside the caller's
// transaction; the rest use the pool directly.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) rebind(query string) string { return db.Rebind(r.Dialect, query) }

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	return r.conn(tx).ExecContext(ctx, r.rebind(query), args...)
}

func (r Repo) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return r.conn(tx).QueryContext(ctx, r.rebind(query), args...)
}

func (r Repo) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	return r.conn(tx).QueryRowContext(ctx, r.rebind(query), args...)
}

// BeginTx opens a write transaction. On Postgres it runs at SERIALIZABLE.
func (r Repo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	var opts *sql.TxOptions
	if r.Dialect == db.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return r.DB.BeginTx(ctx, opts)
}

// LockSlotTx serializes writers on one resource/role across processes. SQLite
// already holds a single writer, so it is a no-op there.
func (r Repo) LockSlotTx(ctx context.Context, tx *sql.Tx, quarterID, resourceName, role string) error {
	if r.Dialect != db.Postgres {
		return nil
	}
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, quarterID+"|"+resourceName+"|"+role)
	return err
}

// IsRetryable reports storage errors a caller may safely retry: lock
// contention, serialization failures and claim-index collisions.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return true
		}
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED,
			sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
