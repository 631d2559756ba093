// Package mongostore implements store.Store on a MongoDB database.
package mongostore

import (
	"context"
	"fmt"

	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Store queries one database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// Connect opens a client on uri, checks the server is reachable and selects
// database. The returned Store disconnects the client on Close.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, fmt.Errorf("mongostore: database is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	logger.Debug("connected to mongodb", "database", database)
	return &Store{client: client, db: client.Database(database), owned: true}, nil
}

// New wraps an existing database handle. Close leaves the client connected.
func New(db *mongo.Database) *Store {
	return &Store{client: db.Client(), db: db}
}

func (s *Store) Find(ctx context.Context, collection string, filter bson.D, opts store.FindOptions) (store.Cursor, error) {
	if filter == nil {
		filter = bson.D{}
	}
	findOpts := options.Find()
	if opts.BatchSize != nil {
		findOpts.SetBatchSize(*opts.BatchSize)
	}
	if opts.Limit != nil {
		findOpts.SetLimit(*opts.Limit)
	}
	if opts.Skip != nil {
		findOpts.SetSkip(*opts.Skip)
	}
	if opts.Sort != nil {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Projection != nil {
		findOpts.SetProjection(opts.Projection)
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find: %w", err)
	}
	return &cursor{cur: cur}, nil
}

func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []bson.D, opts store.AggregateOptions) (store.Cursor, error) {
	aggOpts := options.Aggregate().SetAllowDiskUse(opts.AllowDiskUse)
	if opts.BatchSize != nil {
		aggOpts.SetBatchSize(*opts.BatchSize)
	}

	stages := make(mongo.Pipeline, len(pipeline))
	copy(stages, pipeline)

	cur, err := s.db.Collection(collection).Aggregate(ctx, stages, aggOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: aggregate: %w", err)
	}
	return &cursor{cur: cur}, nil
}

func (s *Store) RunCommand(ctx context.Context, cmd bson.D) (bson.Raw, error) {
	reply, err := s.db.RunCommand(ctx, cmd).Raw()
	if err != nil {
		return nil, fmt.Errorf("mongostore: command: %w", err)
	}
	return reply, nil
}

func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongostore: disconnect: %w", err)
	}
	return nil
}

// cursor adapts *mongo.Cursor, whose current document is a field.
type cursor struct {
	cur *mongo.Cursor
}

func (c *cursor) Next(ctx context.Context) bool   { return c.cur.Next(ctx) }
func (c *cursor) Current() bson.Raw               { return c.cur.Current }
func (c *cursor) Err() error                      { return c.cur.Err() }
func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
