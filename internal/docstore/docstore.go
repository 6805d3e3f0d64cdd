package docstore

import (
	"context"
	"time"
)

// Document is one record in a collection. Data holds the raw JSON object;
// CreatedAt and UpdatedAt carry the server clock and are managed by the
// store, never by callers.
type Document struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Query selects documents from one collection, optionally filtered by
// equality on a single top-level JSON field. Results are always ordered by
// UpdatedAt descending.
type Query struct {
	Collection  string
	FilterField string
	FilterValue string
}

// SnapshotFunc receives the full current result set of a subscribed query.
type SnapshotFunc func(docs []Document)

// ErrorFunc receives a fatal subscription error. After it fires the
// subscription delivers nothing further; consumers must re-subscribe.
type ErrorFunc func(err error)

// Store is collection-based persistence with live query subscriptions.
// Subscribe pushes the entire current result set on every change to the
// collection, including changes made by the subscriber itself; deliveries
// are authoritative replacements, never diffs.
type Store interface {
	Insert(ctx context.Context, collection string, data any) (Document, error)
	Overwrite(ctx context.Context, collection, id string, fields map[string]any) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error)
}
