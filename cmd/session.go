package cmd

import (
	"context"
	"fmt"

	"github.com/bisegni/docsql/pkg/docdriver"
	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/logger"
)

// openConn connects to the store named by the configuration. The caller
// closes the connection, which closes the store.
func openConn(ctx context.Context) (*engine.Conn, error) {
	dsn, err := docdriver.ParseDSN(cfg.URI)
	if err != nil {
		return nil, err
	}
	if cfg.Database != "" {
		dsn.Database = cfg.Database
	}
	if cfg.Collection != "" {
		dsn.Collection = cfg.Collection
	}

	ctx, cancel := commandContext(ctx)
	defer cancel()
	st, err := dsn.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Debug("store opened", "uri", cfg.URI, "database", dsn.Database, "collection", dsn.Collection)

	return engine.NewConn(st,
		engine.WithCollection(dsn.Collection),
		engine.WithLogger(logger.Get()),
	), nil
}

// withConn runs fn over a fresh connection.
func withConn(ctx context.Context, fn func(*engine.Conn) error) error {
	conn, err := openConn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(context.Background()); err != nil {
			logger.Warn("close connection", "error", err)
		}
	}()
	return fn(conn)
}
