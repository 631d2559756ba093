// Package engine turns command documents into store calls and wraps the
// results as tabular cursors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bisegni/docsql/pkg/cursor"
	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/metrics"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/bisegni/docsql/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrNoDocument is returned by Document when nothing matches.
var ErrNoDocument = errors.New("no matching document")

// Conn is a connection context over a store. It carries the default
// collection and tracks the statements it created.
type Conn struct {
	store      store.Store
	collection string
	stmts      map[*Statement]struct{}
	closed     bool
	log        *slog.Logger
}

// Option configures a Conn.
type Option func(*Conn)

// WithCollection sets the default collection.
func WithCollection(name string) Option {
	return func(c *Conn) {
		c.collection = name
	}
}

// WithLogger replaces the global logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		c.log = l
	}
}

// NewConn wraps st. The Conn owns st and closes it on Close.
func NewConn(st store.Store, opts ...Option) *Conn {
	c := &Conn{
		store: st,
		stmts: make(map[*Statement]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get()
	}
	return c
}

// Collection returns the default collection, empty if none.
func (c *Conn) Collection() string {
	return c.collection
}

// SetCollection changes the default collection for later commands.
func (c *Conn) SetCollection(name string) {
	c.collection = name
}

// Store returns the underlying store.
func (c *Conn) Store() store.Store {
	return c.store
}

// CreateStatement returns a new statement bound to c.
func (c *Conn) CreateStatement() (*Statement, error) {
	if c.closed {
		return nil, sqlerr.Closed("CreateStatement")
	}
	s := newStatement(c)
	c.stmts[s] = struct{}{}
	return s, nil
}

func (c *Conn) forget(s *Statement) {
	delete(c.stmts, s)
}

// Document finds the first document of collection matching filter and binds
// it to a single-row cursor whose column is declared with the type column
// has in that document.
func (c *Conn) Document(ctx context.Context, collection string, filter bson.D, column string) (*cursor.SingleRow, error) {
	if c.closed {
		return nil, sqlerr.Closed("Document")
	}
	if collection == "" {
		collection = c.collection
	}
	if collection == "" {
		return nil, sqlerr.InvalidCommand("collection is mandatory")
	}

	one := int64(1)
	start := time.Now()
	src, err := c.store.Find(ctx, collection, filter, store.FindOptions{Limit: &one})
	metrics.ObserveCommand(KindFind.String(), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("find on %s: %w", collection, err)
	}
	defer func() {
		if err := src.Close(ctx); err != nil {
			c.log.Warn("close document cursor", "collection", collection, "error", err)
		}
	}()

	if !src.Next(ctx) {
		if err := src.Err(); err != nil {
			return nil, fmt.Errorf("find on %s: %w", collection, err)
		}
		return nil, ErrNoDocument
	}
	doc := append(bson.Raw(nil), src.Current()...)

	t := bson.TypeNull
	if v, err := doc.LookupErr(column); err == nil {
		t = v.Type
	}
	return cursor.NewSingleRow(collection, column, doc, t), nil
}

// Close closes every open statement, and so their cursors, then the store.
// Closing twice is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for s := range c.stmts {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	c.log.Debug("connection closed")
	return errors.Join(errs...)
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	return c.closed
}
