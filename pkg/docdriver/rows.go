package docdriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"time"

	"github.com/bisegni/docsql/pkg/cursor"
	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/schema"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// rows adapts a streaming cursor. database/sql asks for the columns once,
// before the first row, so they are frozen from the first document; keys
// that only appear later are not returned and missing keys scan as NULL.
type rows struct {
	ctx     context.Context
	stmt    *engine.Statement
	rs      *cursor.Rows
	columns []string
	types   []bson.Type
	primed  bool
}

var (
	_ driver.Rows                           = (*rows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*rows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*rows)(nil)
)

func newRows(ctx context.Context, s *engine.Statement, rs *cursor.Rows) (*rows, error) {
	r := &rows{ctx: ctx, stmt: s, rs: rs}
	r.primed = rs.Next(ctx)
	if err := rs.Err(); err != nil {
		r.Close()
		return nil, err
	}
	meta := rs.Metadata()
	r.columns = meta.Columns()
	r.types = make([]bson.Type, len(r.columns))
	for i := range r.columns {
		r.types[i], _ = meta.StoreType(i + 1)
	}
	return r, nil
}

func (r *rows) Columns() []string {
	return r.columns
}

func (r *rows) Close() error {
	return errors.Join(r.rs.Close(), r.stmt.Close())
}

func (r *rows) Next(dest []driver.Value) error {
	if r.primed {
		r.primed = false
	} else if !r.rs.Next(r.ctx) {
		if err := r.rs.Err(); err != nil {
			return err
		}
		return io.EOF
	}

	doc, err := r.rs.Document()
	if err != nil {
		return err
	}
	for i, name := range r.columns {
		v, err := doc.LookupErr(name)
		if err != nil {
			dest[i] = nil
			continue
		}
		if dest[i], err = r.value(name, v); err != nil {
			return err
		}
	}
	return nil
}

// value converts v to one of the types database/sql accepts from drivers.
func (r *rows) value(name string, v bson.RawValue) (driver.Value, error) {
	switch v.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return nil, nil
	case bson.TypeDouble:
		return v.Double(), nil
	case bson.TypeInt32:
		return int64(v.Int32()), nil
	case bson.TypeInt64:
		return v.Int64(), nil
	case bson.TypeBoolean:
		return v.Boolean(), nil
	case bson.TypeDateTime:
		return v.Time().UTC(), nil
	case bson.TypeTimestamp:
		return r.rs.Timestamp(name)
	case bson.TypeBinary:
		return r.rs.Bytes(name)
	default:
		return r.rs.String(name)
	}
}

var (
	scanFloat  = reflect.TypeOf(float64(0))
	scanInt    = reflect.TypeOf(int64(0))
	scanBool   = reflect.TypeOf(false)
	scanTime   = reflect.TypeOf(time.Time{})
	scanBytes  = reflect.TypeOf([]byte(nil))
	scanString = reflect.TypeOf("")
	scanAny    = reflect.TypeOf((*any)(nil)).Elem()
)

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	switch r.types[index] {
	case bson.TypeDouble:
		return scanFloat
	case bson.TypeInt32, bson.TypeInt64:
		return scanInt
	case bson.TypeBoolean:
		return scanBool
	case bson.TypeDateTime, bson.TypeTimestamp:
		return scanTime
	case bson.TypeBinary:
		return scanBytes
	case bson.TypeNull, bson.TypeUndefined:
		return scanAny
	default:
		return scanString
	}
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return schema.Lookup(r.types[index]).Name
}

// ColumnTypeNullable is always true: any later document may lack the key.
func (r *rows) ColumnTypeNullable(int) (nullable, ok bool) {
	return true, true
}

func (r *rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	meta := r.rs.Metadata()
	return int64(meta.Precision(index + 1)), int64(meta.Scale(index + 1)), true
}
