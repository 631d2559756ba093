package cursor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/metrics"
	"github.com/bisegni/docsql/pkg/schema"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/bisegni/docsql/pkg/store"
)

// Rows is a forward-only cursor over a store result. Every top-level key of a
// visited document is registered in the metadata before the row is exposed.
type Rows struct {
	fields
	src store.Cursor
	row int
	err error
	log *slog.Logger
}

// NewRows wraps src. meta must be fresh and is owned by the returned Rows.
func NewRows(src store.Cursor, meta *schema.Metadata) *Rows {
	return &Rows{
		fields: fields{meta: meta},
		src:    src,
		log:    logger.Get().With("collection", meta.TableName(0)),
	}
}

// Next advances to the next document. It returns false when the result is
// exhausted, on error, or once the cursor is closed.
func (r *Rows) Next(ctx context.Context) bool {
	if r.closed {
		r.err = sqlerr.Closed("Next")
		return false
	}
	if r.err != nil {
		return false
	}
	if !r.src.Next(ctx) {
		r.doc = nil
		if err := r.src.Err(); err != nil {
			r.err = fmt.Errorf("advance cursor: %w", err)
		}
		return false
	}

	doc := r.src.Current()
	elems, err := doc.Elements()
	if err != nil {
		r.doc = nil
		r.err = fmt.Errorf("decode document %d: %w", r.row+1, err)
		return false
	}
	for _, e := range elems {
		r.meta.Register(e.Key(), e.Value().Type)
	}
	r.doc = doc
	r.row++
	metrics.RowsTotal.Inc()
	return true
}

// Err returns the error that stopped iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// RowNumber is the 1-based number of the current row. It keeps its value
// after the result is exhausted.
func (r *Rows) RowNumber() int {
	return r.row
}

// Close releases the store cursor. Closing twice is a no-op.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.doc = nil
	r.log.Debug("close cursor", "rows", r.row, "columns", r.meta.ColumnCount())
	if err := r.src.Close(context.Background()); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}
	return nil
}

// Perform rejects the scroll and update operations a forward-only, read-only
// cursor cannot offer.
func (r *Rows) Perform(op Operation) error {
	if r.closed {
		return sqlerr.Closed(op.String())
	}
	return sqlerr.NotSupported(op.String())
}
