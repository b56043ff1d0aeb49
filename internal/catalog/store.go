package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Store is the Catalog Store (spec.md §4.1): ACID persistence for the
// entities in §3 plus the snapshot-read, scoped-session, batch-insert, and
// batch-delete contracts the rest of the engine relies on.
type Store struct {
	*sqlx.DB
}

// New opens a PostgreSQL-backed catalog store.
func New(databaseURL string) (*Store, error) {
	db, err := otelsqlx.Connect("postgres", databaseURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	return &Store{DB: db}, nil
}

// Health checks the database connection health.
func (s *Store) Health(ctx context.Context) error {
	return s.PingContext(ctx)
}

// Session is a scoped read-write transaction: create, mutate, and save a
// set of entities within a single transaction, released on scope exit
// regardless of success (spec.md §4.1 "Scoped session").
type Session struct {
	*sqlx.Tx
}

// WithSession opens a transaction, runs fn, and commits on success or rolls
// back on error/panic. This is the only way callers mutate the catalog in
// more than one statement, matching the teacher's BeginTx/defer Rollback
// pattern in photo_repository.go's VoteWithToggle.
func (s *Store) WithSession(ctx context.Context, fn func(sess Session) error) (err error) {
	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(Session{Tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("session failed: %w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}
