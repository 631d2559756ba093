package docdriver

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/bisegni/docsql/pkg/store"
	"github.com/bisegni/docsql/pkg/translate"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type conn struct {
	eng *engine.Conn
}

var (
	_ driver.Conn               = (*conn)(nil)
	_ driver.QueryerContext     = (*conn)(nil)
	_ driver.ExecerContext      = (*conn)(nil)
	_ driver.ConnPrepareContext = (*conn)(nil)
	_ driver.Pinger             = (*conn)(nil)
)

func newConn(st store.Store, collection string) *conn {
	return &conn{eng: engine.NewConn(st, engine.WithCollection(collection))}
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	if c.eng.IsClosed() {
		return nil, driver.ErrBadConn
	}
	return &stmt{conn: c, query: query}, nil
}

func (c *conn) Close() error {
	return c.eng.Close(context.Background())
}

func (c *conn) Begin() (driver.Tx, error) {
	return nil, sqlerr.NotSupported("Begin")
}

func (c *conn) Ping(ctx context.Context) error {
	if c.eng.IsClosed() {
		return driver.ErrBadConn
	}
	_, err := c.eng.Store().RunCommand(ctx, bson.D{{Key: "ping", Value: int32(1)}})
	return err
}

// command reads query as a SELECT statement or a command document.
func command(query string) (*engine.Command, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "SELECT") {
		doc, err := translate.Translate(trimmed)
		if err != nil {
			return nil, err
		}
		return engine.CommandFromDocument(doc)
	}
	return engine.ParseCommand(trimmed)
}

func noArgs(op string, args []driver.NamedValue) error {
	if len(args) > 0 {
		return sqlerr.NotSupported(fmt.Sprintf("%s with %d placeholder arguments", op, len(args)))
	}
	return nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := noArgs("Query", args); err != nil {
		return nil, err
	}
	cmd, err := command(query)
	if err != nil {
		return nil, err
	}
	s, err := c.eng.CreateStatement()
	if err != nil {
		return nil, err
	}
	rs, err := s.Query(ctx, cmd)
	if err != nil {
		s.Close()
		return nil, err
	}
	return newRows(ctx, s, rs)
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := noArgs("Exec", args); err != nil {
		return nil, err
	}
	s, err := c.eng.CreateStatement()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	n, err := s.ExecuteUpdate(ctx, query)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(n), nil
}

// stmt defers all work to the connection; there is nothing to prepare.
type stmt struct {
	conn  *conn
	query string
}

var (
	_ driver.Stmt             = (*stmt)(nil)
	_ driver.StmtQueryContext = (*stmt)(nil)
	_ driver.StmtExecContext  = (*stmt)(nil)
)

func (s *stmt) Close() error { return nil }

// NumInput is zero so database/sql rejects arguments itself.
func (s *stmt) NumInput() int { return 0 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), named(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), named(args))
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}
