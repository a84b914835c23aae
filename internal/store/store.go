// Package store is the document store behind the game: one SQLite table per
// collection (rounds, scores, tournaments, settings, event_logs), each row a
// JSONB document plus the columns it is filtered and sorted by.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateAnswer = errors.New("player already answered this round")
)

// sortableTime is fixed-width so indexed time columns sort lexically.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// DocStore implements the collections on top of a *sql.DB opened by
// database.Open and migrated by migrations.Run.
type DocStore struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *DocStore {
	return &DocStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Ping reports whether the underlying database is reachable.
func (s *DocStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func newID() string {
	return uuid.NewString()
}

func sortable(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// getDoc decodes the single document selected by query into dest.
func getDoc(ctx context.Context, q querier, dest any, query string, args ...any) error {
	var data string
	err := q.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// listDocs decodes every document selected by query, in row order.
func listDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var doc T
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// inTx runs fn in a transaction, committing only when fn returns nil.
func (s *DocStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
