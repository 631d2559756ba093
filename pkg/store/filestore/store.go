// Package filestore is a document store over a directory of JSON and JSON
// Lines files, one collection per file. It answers the same find, aggregate
// and command requests as a server so the bridge can run offline. Mutations
// stay in memory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("filestore: store is closed")

// Store implements store.Store in memory.
type Store struct {
	catalog *Catalog
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ store.Store = (*Store)(nil)

// Open creates a store over the .json and .jsonl files of dir.
func Open(dir string) (*Store, error) {
	c := NewCatalog()
	if err := c.LoadDir(dir); err != nil {
		return nil, err
	}
	s := newStore(c)
	s.log.Debug("file store opened", "dir", dir, "collections", c.Names())
	return s, nil
}

// NewMemory creates a store over the given collections.
func NewMemory(collections map[string][]bson.D) *Store {
	c := NewCatalog()
	for name, docs := range collections {
		c.Register(name, docs)
	}
	return newStore(c)
}

func newStore(c *Catalog) *Store {
	return &Store{catalog: c, log: logger.Get().With("store", "file")}
}

// Catalog exposes the collections of the store.
func (s *Store) Catalog() *Catalog {
	return s.catalog
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Find filters, sorts, skips, limits and projects, in that order.
func (s *Store) Find(ctx context.Context, collection string, filter bson.D, opts store.FindOptions) (store.Cursor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}
	var proj *projection
	if len(opts.Projection) > 0 {
		if proj, err = compileProjection(opts.Projection); err != nil {
			return nil, err
		}
	}
	if len(opts.Sort) > 0 {
		if err := validateSort(opts.Sort); err != nil {
			return nil, err
		}
	}

	docs, err := s.catalog.Snapshot(collection)
	if err != nil {
		return nil, err
	}
	docs = filterDocs(docs, m)
	if len(opts.Sort) > 0 {
		sortDocs(docs, opts.Sort)
	}
	if opts.Skip != nil {
		if *opts.Skip < 0 {
			return nil, fmt.Errorf("skip value must be non-negative, but received: %d", *opts.Skip)
		}
		docs = skipDocs(docs, *opts.Skip)
	}
	if opts.Limit != nil {
		docs = limitDocs(docs, *opts.Limit)
	}
	if proj != nil {
		for i, d := range docs {
			if docs[i], err = proj.apply(d); err != nil {
				return nil, err
			}
		}
	}
	s.log.Debug("find", "collection", collection, "matched", len(docs))
	return cursorOver(docs)
}

// Aggregate runs pipeline over a snapshot of collection.
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []bson.D, _ store.AggregateOptions) (store.Cursor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stages, err := compilePipeline(pipeline)
	if err != nil {
		return nil, err
	}
	docs, err := s.catalog.Snapshot(collection)
	if err != nil {
		return nil, err
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if docs, err = st(docs); err != nil {
			return nil, err
		}
	}
	s.log.Debug("aggregate", "collection", collection, "stages", len(stages), "results", len(docs))
	return cursorOver(docs)
}

func cursorOver(docs []bson.D) (store.Cursor, error) {
	raws, err := store.MarshalAll(docs)
	if err != nil {
		return nil, err
	}
	return store.NewSliceCursor(raws), nil
}

// Close marks the store closed. It is safe to call more than once.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
