package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// PostgresStore keeps documents in a JSONB table and announces every write
// on the change feed so live subscriptions re-deliver their result sets.
type PostgresStore struct {
	pool   *pgxpool.Pool
	feed   *ChangeFeed
	logger *zap.Logger
}

// NewPostgresStore builds the store.
func NewPostgresStore(pool *pgxpool.Pool, feed *ChangeFeed, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, feed: feed, logger: logger}
}

// Insert writes a new document and returns it with its server-assigned id
// and timestamps.
func (s *PostgresStore) Insert(ctx context.Context, collection string, data any) (Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Document{}, fmt.Errorf("marshal document: %w", err)
	}

	const query = `
        INSERT INTO documents (collection, data)
        VALUES ($1, $2)
        RETURNING id, created_at, updated_at`

	doc := Document{Data: payload}
	if err := s.pool.QueryRow(ctx, query, collection, payload).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}

	s.announce(ctx, collection)
	return doc, nil
}

// Overwrite replaces the given top-level fields of a document and refreshes
// its server-side UpdatedAt. Fields not named keep their current values.
func (s *PostgresStore) Overwrite(ctx context.Context, collection, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	const query = `
        UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
        WHERE collection = $1 AND id = $2`

	cmd, err := s.pool.Exec(ctx, query, collection, id, payload)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.announce(ctx, collection)
	return nil
}

// Get fetches a single document by id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	const query = `
        SELECT id, data, created_at, updated_at
        FROM documents WHERE collection = $1 AND id = $2`

	var doc Document
	if err := s.pool.QueryRow(ctx, query, collection, id).Scan(
		&doc.ID,
		&doc.Data,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// Find runs the query once, ordered by UpdatedAt descending.
func (s *PostgresStore) Find(ctx context.Context, q Query) ([]Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if q.FilterField != "" {
		const query = `
            SELECT id, data, created_at, updated_at
            FROM documents
            WHERE collection = $1 AND data->>$2 = $3
            ORDER BY updated_at DESC`
		rows, err = s.pool.Query(ctx, query, q.Collection, q.FilterField, q.FilterValue)
	} else {
		const query = `
            SELECT id, data, created_at, updated_at
            FROM documents
            WHERE collection = $1
            ORDER BY updated_at DESC`
		rows, err = s.pool.Query(ctx, query, q.Collection)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

// Subscribe opens a live query. The current result set is delivered
// immediately, then again after every change to the collection. A query
// failure is reported once through onError and ends the subscription. The
// returned cancel function stops deliveries and releases the change feed
// watcher.
func (s *PostgresStore) Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	signals, stopWatch := s.feed.Watch(q.Collection)
	done := make(chan struct{})

	go func() {
		defer stopWatch()

		deliver := func() bool {
			docs, err := s.Find(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				onError(err)
				return false
			}
			onSnapshot(docs)
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-signals:
				if !deliver() {
					return
				}
			}
		}
	}()

	var stopOnce sync.Once
	cancel := func() {
		stopOnce.Do(func() { close(done) })
	}
	return cancel, nil
}

func (s *PostgresStore) announce(ctx context.Context, collection string) {
	if err := s.feed.Announce(ctx, collection); err != nil {
		s.logger.Warn("change announce failed", zap.String("collection", collection), zap.Error(err))
	}
}
