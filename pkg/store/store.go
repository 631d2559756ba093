// Package store defines the boundary to the document store the bridge
// queries. Implementations live in the mongostore and filestore packages.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Cursor is a lazy, single-pass sequence of documents.
type Cursor interface {
	// Next advances the cursor. Returns false when exhausted or on error.
	Next(ctx context.Context) bool
	// Current returns the document the cursor is positioned on.
	Current() bson.Raw
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases resources.
	Close(ctx context.Context) error
}

// FindOptions modify a find. Nil fields are not sent.
type FindOptions struct {
	BatchSize  *int32
	Limit      *int64
	Skip       *int64
	Sort       bson.D
	Projection bson.D
}

// AggregateOptions modify an aggregate.
type AggregateOptions struct {
	AllowDiskUse bool
	BatchSize    *int32
}

// Store is a document store that can be queried by collection.
type Store interface {
	// Find returns the documents of collection matching filter. A nil filter
	// matches every document.
	Find(ctx context.Context, collection string, filter bson.D, opts FindOptions) (Cursor, error)
	// Aggregate runs pipeline over collection.
	Aggregate(ctx context.Context, collection string, pipeline []bson.D, opts AggregateOptions) (Cursor, error)
	// RunCommand submits an administrative or update command and returns
	// the reply document.
	RunCommand(ctx context.Context, cmd bson.D) (bson.Raw, error)
	Close(ctx context.Context) error
}

// SliceCursor iterates over documents held in memory.
type SliceCursor struct {
	docs []bson.Raw
	pos  int
	err  error
}

// NewSliceCursor returns a cursor over docs.
func NewSliceCursor(docs []bson.Raw) *SliceCursor {
	return &SliceCursor{docs: docs, pos: -1}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Current() bson.Raw {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *SliceCursor) Err() error {
	return c.err
}

func (c *SliceCursor) Close(context.Context) error {
	c.docs = nil
	c.pos = 0
	return nil
}

// MarshalAll encodes docs for a SliceCursor.
func MarshalAll(docs []bson.D) ([]bson.Raw, error) {
	out := make([]bson.Raw, 0, len(docs))
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
