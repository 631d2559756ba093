// Package docdriver exposes the bridge through database/sql.
//
//	db, err := sql.Open("docsql", "mongodb://localhost:27017/shop?collection=orders")
//	rows, err := db.QueryContext(ctx, `{"filter": {"status": "open"}}`)
//
// Queries are command documents or SELECT statements. Exec runs an update or
// administrative command and reports its modified count. Transactions and
// placeholders are not supported.
package docdriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/store"
)

// DriverName is the name the driver registers with database/sql.
const DriverName = "docsql"

func init() {
	sql.Register(DriverName, &Driver{})
}

// Driver implements driver.Driver and driver.DriverContext.
type Driver struct{}

var (
	_ driver.Driver        = (*Driver)(nil)
	_ driver.DriverContext = (*Driver)(nil)
)

// Open opens a single connection that owns its store.
func (d *Driver) Open(name string) (driver.Conn, error) {
	dsn, err := ParseDSN(name)
	if err != nil {
		return nil, err
	}
	st, err := dsn.Open(context.Background())
	if err != nil {
		return nil, err
	}
	return newConn(st, dsn.Collection), nil
}

// OpenConnector parses name once. The store is opened by the first
// connection and shared by the following ones.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	dsn, err := ParseDSN(name)
	if err != nil {
		return nil, err
	}
	return &connector{driver: d, dsn: dsn, collection: dsn.Collection}, nil
}

// NewConnector serves connections over an existing store, for use with
// sql.OpenDB. The caller keeps ownership of st.
func NewConnector(st store.Store, collection string) driver.Connector {
	return &connector{driver: &Driver{}, st: st, collection: collection, borrowed: true}
}

type connector struct {
	driver     *Driver
	dsn        *DSN
	collection string

	mu       sync.Mutex
	st       store.Store
	borrowed bool
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	st, err := c.store(ctx)
	if err != nil {
		return nil, err
	}
	return newConn(shared{st}, c.collection), nil
}

func (c *connector) store(ctx context.Context) (store.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != nil {
		return c.st, nil
	}
	st, err := c.dsn.Open(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "driver", DriverName, "collection", c.collection)
	c.st = st
	return st, nil
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// Close is called by sql.DB.Close and releases a store the connector opened.
func (c *connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil || c.borrowed {
		return nil
	}
	err := c.st.Close(context.Background())
	c.st = nil
	return err
}

// shared keeps connections from closing the store they share.
type shared struct {
	store.Store
}

func (shared) Close(context.Context) error { return nil }
