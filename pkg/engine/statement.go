package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bisegni/docsql/pkg/cursor"
	"github.com/bisegni/docsql/pkg/metrics"
	"github.com/bisegni/docsql/pkg/schema"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/bisegni/docsql/pkg/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// KindCommand labels administrative and update commands in metrics.
const KindCommand = "command"

// Statement runs commands on behalf of a connection. It owns at most one open
// cursor: running another query closes the previous one.
type Statement struct {
	id     string
	conn   *Conn
	rows   *cursor.Rows
	closed bool
	log    *slog.Logger
}

// ID identifies the statement in logs.
func (s *Statement) ID() string {
	return s.id
}

// ExecuteQuery parses text as a command document and runs it.
func (s *Statement) ExecuteQuery(ctx context.Context, text string) (*cursor.Rows, error) {
	if s.closed {
		return nil, sqlerr.Closed("ExecuteQuery")
	}
	cmd, err := ParseCommand(text)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, cmd)
}

// Query submits cmd as a find or an aggregate and wraps the result.
func (s *Statement) Query(ctx context.Context, cmd *Command) (*cursor.Rows, error) {
	if s.closed {
		return nil, sqlerr.Closed("Query")
	}
	collection := cmd.Collection
	if collection == "" {
		collection = s.conn.Collection()
	}
	if collection == "" {
		return nil, sqlerr.InvalidCommand("collection is mandatory")
	}

	if err := s.closeRows(); err != nil {
		s.log.Warn("close previous cursor", "error", err)
	}

	s.log.Debug("dispatch command", "kind", cmd.Kind.String(), "collection", collection)

	start := time.Now()
	var (
		src store.Cursor
		err error
	)
	switch cmd.Kind {
	case KindAggregate:
		src, err = s.conn.store.Aggregate(ctx, collection, cmd.Pipeline, store.AggregateOptions{
			AllowDiskUse: true,
			BatchSize:    cmd.BatchSize,
		})
	default:
		src, err = s.conn.store.Find(ctx, collection, cmd.Filter, store.FindOptions{
			BatchSize:  cmd.BatchSize,
			Limit:      cmd.Limit,
			Skip:       cmd.Skip,
			Sort:       cmd.Sort,
			Projection: cmd.Projection,
		})
	}
	metrics.ObserveCommand(cmd.Kind.String(), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", cmd.Kind, collection, err)
	}

	s.rows = cursor.NewRows(src, schema.NewMetadata(collection))
	return s.rows, nil
}

// ExecuteUpdate submits text as a store command and returns the modified
// count from the reply, 0 when the reply has none.
func (s *Statement) ExecuteUpdate(ctx context.Context, text string) (int64, error) {
	if s.closed {
		return 0, sqlerr.Closed("ExecuteUpdate")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, sqlerr.InvalidCommand("update command is empty")
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(text), false, &doc); err != nil {
		return 0, sqlerr.InvalidCommand("parse command: %w", err)
	}
	return s.Update(ctx, doc)
}

// Update submits doc as a store command.
func (s *Statement) Update(ctx context.Context, doc bson.D) (int64, error) {
	if s.closed {
		return 0, sqlerr.Closed("Update")
	}
	if len(doc) == 0 {
		return 0, sqlerr.InvalidCommand("update command is empty")
	}

	s.log.Debug("run command", "kind", KindCommand, "name", doc[0].Key)

	start := time.Now()
	reply, err := s.conn.store.RunCommand(ctx, doc)
	metrics.ObserveCommand(KindCommand, time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", doc[0].Key, err)
	}
	return modifiedCount(reply), nil
}

func modifiedCount(reply bson.Raw) int64 {
	v, err := reply.LookupErr("nModified")
	if err != nil {
		return 0
	}
	if n, ok := v.Int32OK(); ok {
		return int64(n)
	}
	if n, ok := v.Int64OK(); ok {
		return n
	}
	if n, ok := v.DoubleOK(); ok {
		return int64(n)
	}
	return 0
}

// Rows returns the statement's current cursor, nil if none.
func (s *Statement) Rows() *cursor.Rows {
	return s.rows
}

func (s *Statement) closeRows() error {
	if s.rows == nil {
		return nil
	}
	rows := s.rows
	s.rows = nil
	return rows.Close()
}

// Close closes the open cursor and detaches the statement from its
// connection. Closing twice is a no-op.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.forget(s)
	return s.closeRows()
}

// IsClosed reports whether Close has been called.
func (s *Statement) IsClosed() bool {
	return s.closed
}

// Perform dispatches the statement capabilities outside query and update.
// Cancellation and timeouts are carried by the context instead, so their
// knobs are accepted and ignored.
func (s *Statement) Perform(op Operation) error {
	if s.closed {
		return sqlerr.Closed(op.String())
	}
	switch op {
	case OpCancel, OpSetQueryTimeout:
		s.log.Debug("ignoring statement operation", "op", op.String())
		return nil
	default:
		return sqlerr.NotSupported(op.String())
	}
}

// Operation names a statement capability outside query and update.
type Operation int

const (
	OpCancel Operation = iota
	OpSetQueryTimeout
	OpExecute
	OpAddBatch
	OpClearBatch
	OpExecuteBatch
	OpGeneratedKeys
	OpMoreResults
	OpSetFetchDirection
	OpSetFetchSize
	OpUpdateCount
	OpResultSet
	OpExecuteWithKeys
	OpSetCursorName
	OpHoldability
)

var opNames = [...]string{
	OpCancel:            "Cancel",
	OpSetQueryTimeout:   "SetQueryTimeout",
	OpExecute:           "Execute",
	OpAddBatch:          "AddBatch",
	OpClearBatch:        "ClearBatch",
	OpExecuteBatch:      "ExecuteBatch",
	OpGeneratedKeys:     "GeneratedKeys",
	OpMoreResults:       "MoreResults",
	OpSetFetchDirection: "SetFetchDirection",
	OpSetFetchSize:      "SetFetchSize",
	OpUpdateCount:       "UpdateCount",
	OpResultSet:         "ResultSet",
	OpExecuteWithKeys:   "ExecuteWithKeys",
	OpSetCursorName:     "SetCursorName",
	OpHoldability:       "Holdability",
}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "Unknown"
	}
	return opNames[op]
}

func newStatement(conn *Conn) *Statement {
	id := uuid.NewString()
	return &Statement{
		id:   id,
		conn: conn,
		log:  conn.log.With("statement", id),
	}
}
