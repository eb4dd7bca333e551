// Package pg implements the vault store contracts on PostgreSQL.
//
// Logins and names are stored with COLLATE "C" so uniqueness and lookups are
// byte-wise regardless of the database default collation; see the schema in
// migrations/sql.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sandyq.org/internal/vault"
)

// Store aggregates the three entity stores over one connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Users returns the UserStore view.
func (s *Store) Users() vault.UserStore { return &userStore{db: s.db} }

// Categories returns the CategoryStore view.
func (s *Store) Categories() vault.CategoryStore { return &categoryStore{db: s.db} }

// Secrets returns the SecretStore view.
func (s *Store) Secrets() vault.SecretStore { return &secretStore{db: s.db} }

type txKey struct{}

// InTx implements vault.TxRunner. Statements issued through the context fn
// receives run on one *sql.Tx; a nested call joins the open transaction
// instead of starting a second one.
func (s *Store) InTx(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// querier is the statement surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querierFrom(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

const codeUniqueViolation = "23505"

// uniqueViolation maps a Postgres unique-index violation onto the
// already-exists sentinel, so a check-then-insert race lost to a concurrent
// writer reports a conflict rather than a storage failure.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%w: %s", vault.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}
