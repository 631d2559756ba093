// Package cursor exposes documents as forward-only tabular results.
//
// Columns are discovered from the documents visited so far (see
// schema.Metadata), so an index is only valid once a row carrying that key
// has been read. Accessors come in pairs: by label and by 1-based index.
package cursor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bisegni/docsql/pkg/schema"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	errNoRow    = errors.New("no current row")
	errMissing  = errors.New("no such field")
	errNotValid = errors.New("value is not valid for this type")
)

// fields implements value access over the current document. It is shared by
// the streaming and single-row cursors.
type fields struct {
	doc     bson.Raw
	meta    *schema.Metadata
	closed  bool
	wasNull bool
}

func (f *fields) lookup(op, label string) (bson.RawValue, error) {
	f.wasNull = false
	if f.closed {
		return bson.RawValue{}, sqlerr.Closed(op)
	}
	if f.doc == nil {
		return bson.RawValue{}, sqlerr.Coercion(op, label, errNoRow)
	}
	v, err := f.doc.LookupErr(label)
	if err != nil {
		return bson.RawValue{}, sqlerr.Coercion(op, label, errMissing)
	}
	f.wasNull = v.Type == bson.TypeNull || v.Type == bson.TypeUndefined
	return v, nil
}

// label resolves a 1-based index to its column name.
func (f *fields) label(op string, index int) (string, error) {
	if f.closed {
		return "", sqlerr.Closed(op)
	}
	name, err := f.meta.ColumnName(index)
	if err != nil {
		var se *sqlerr.Error
		if errors.As(err, &se) {
			se.Op = op
		}
		return "", err
	}
	return name, nil
}

func mismatch(op, label string, v bson.RawValue) error {
	return sqlerr.Coercion(op, label, fmt.Errorf("%w: %s", errNotValid, v.Type))
}

// Metadata returns the live column registry.
func (f *fields) Metadata() *schema.Metadata { return f.meta }

// IsClosed reports whether Close has been called.
func (f *fields) IsClosed() bool { return f.closed }

// WasNull reports whether the last value read was null.
func (f *fields) WasNull() bool { return f.wasNull }

// Document returns the current document.
func (f *fields) Document() (bson.Raw, error) {
	if f.closed {
		return nil, sqlerr.Closed("Document")
	}
	if f.doc == nil {
		return nil, sqlerr.Coercion("Document", "", errNoRow)
	}
	return f.doc, nil
}

// Value returns the raw value of label.
func (f *fields) Value(label string) (bson.RawValue, error) {
	return f.lookup("Value", label)
}

func (f *fields) String(label string) (string, error) {
	v, err := f.lookup("String", label)
	if err != nil {
		return "", err
	}
	s, err := render(v)
	if err != nil {
		return "", sqlerr.Coercion("String", label, err)
	}
	return s, nil
}

// render returns the text form of v. Documents and arrays are relaxed
// Extended JSON.
func render(v bson.RawValue) (string, error) {
	switch v.Type {
	case bson.TypeString:
		return v.StringValue(), nil
	case bson.TypeInt32:
		return strconv.FormatInt(int64(v.Int32()), 10), nil
	case bson.TypeInt64:
		return strconv.FormatInt(v.Int64(), 10), nil
	case bson.TypeDouble:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64), nil
	case bson.TypeBoolean:
		return strconv.FormatBool(v.Boolean()), nil
	case bson.TypeObjectID:
		return v.ObjectID().Hex(), nil
	case bson.TypeNull, bson.TypeUndefined:
		return "", nil
	case bson.TypeDecimal128:
		return v.Decimal128().String(), nil
	case bson.TypeDateTime:
		return time.UnixMilli(v.DateTime()).UTC().Format(time.RFC3339Nano), nil
	case bson.TypeTimestamp:
		t, _ := v.Timestamp()
		return time.Unix(int64(t), 0).UTC().Format(time.RFC3339), nil
	case bson.TypeBinary:
		_, data := v.Binary()
		return base64.StdEncoding.EncodeToString(data), nil
	case bson.TypeEmbeddedDocument:
		out, err := bson.MarshalExtJSON(v.Document(), false, false)
		return string(out), err
	default:
		return valueJSON(v)
	}
}

// valueJSON renders a value that cannot stand as a top-level document by
// wrapping it in one.
func valueJSON(v bson.RawValue) (string, error) {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return "", err
	}
	s := strings.TrimPrefix(string(out), `{"v":`)
	return strings.TrimSuffix(s, "}"), nil
}

func (f *fields) Bool(label string) (bool, error) {
	v, err := f.lookup("Bool", label)
	if err != nil {
		return false, err
	}
	if f.wasNull {
		return false, nil
	}
	b, ok := v.BooleanOK()
	if !ok {
		return false, mismatch("Bool", label, v)
	}
	return b, nil
}

// parseRendered reads label as text and hands it to parse, the way narrow
// numeric accessors accept any value whose text form is a number.
func (f *fields) parseRendered(op, label string, parse func(string) error) error {
	v, err := f.lookup(op, label)
	if err != nil {
		return err
	}
	if f.wasNull {
		return nil
	}
	s, err := render(v)
	if err != nil {
		return sqlerr.Coercion(op, label, err)
	}
	if err := parse(s); err != nil {
		return sqlerr.Coercion(op, label, err)
	}
	return nil
}

func (f *fields) Byte(label string) (int8, error) {
	var out int8
	err := f.parseRendered("Byte", label, func(s string) error {
		n, err := strconv.ParseInt(s, 10, 8)
		out = int8(n)
		return err
	})
	return out, err
}

func (f *fields) Short(label string) (int16, error) {
	var out int16
	err := f.parseRendered("Short", label, func(s string) error {
		n, err := strconv.ParseInt(s, 10, 16)
		out = int16(n)
		return err
	})
	return out, err
}

func (f *fields) Float(label string) (float32, error) {
	var out float32
	err := f.parseRendered("Float", label, func(s string) error {
		n, err := strconv.ParseFloat(s, 32)
		out = float32(n)
		return err
	})
	return out, err
}

// Int returns label as a 32-bit integer, or -1 when the field is absent.
func (f *fields) Int(label string) (int32, error) {
	n, err := f.integer("Int", label, math.MinInt32, math.MaxInt32)
	return int32(n), err
}

// Long returns label as a 64-bit integer, or -1 when the field is absent.
func (f *fields) Long(label string) (int64, error) {
	return f.integer("Long", label, math.MinInt64, math.MaxInt64)
}

func (f *fields) integer(op, label string, lo, hi int64) (int64, error) {
	v, err := f.lookup(op, label)
	if errors.Is(err, errMissing) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}

	var n int64
	switch v.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return 0, nil
	case bson.TypeInt32:
		n = int64(v.Int32())
	case bson.TypeInt64:
		n = v.Int64()
	case bson.TypeDouble:
		d := v.Double()
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if d != math.Trunc(d) || d < float64(lo) || d >= float64(hi)+1 {
			return 0, mismatch(op, label, v)
		}
		n = int64(d)
	case bson.TypeString:
		n, err = strconv.ParseInt(strings.TrimSpace(v.StringValue()), 10, 64)
		if err != nil {
			return 0, sqlerr.Coercion(op, label, err)
		}
	default:
		return 0, mismatch(op, label, v)
	}
	if n < lo || n > hi {
		return 0, sqlerr.Coercion(op, label, fmt.Errorf("%d out of range", n))
	}
	return n, nil
}

func (f *fields) Double(label string) (float64, error) {
	v, err := f.lookup("Double", label)
	if err != nil {
		return 0, err
	}
	switch v.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return 0, nil
	case bson.TypeDouble:
		return v.Double(), nil
	case bson.TypeInt32:
		return float64(v.Int32()), nil
	case bson.TypeInt64:
		return float64(v.Int64()), nil
	case bson.TypeDecimal128, bson.TypeString:
		s, _ := render(v)
		d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, sqlerr.Coercion("Double", label, err)
		}
		return d, nil
	default:
		return 0, mismatch("Double", label, v)
	}
}

// Bytes returns binary payloads as is and base64-decodes strings.
func (f *fields) Bytes(label string) ([]byte, error) {
	v, err := f.lookup("Bytes", label)
	if err != nil {
		return nil, err
	}
	switch v.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return nil, nil
	case bson.TypeBinary:
		_, data := v.Binary()
		return append([]byte(nil), data...), nil
	case bson.TypeString:
		data, err := base64.StdEncoding.DecodeString(v.StringValue())
		if err != nil {
			return nil, sqlerr.Coercion("Bytes", label, err)
		}
		return data, nil
	default:
		return nil, mismatch("Bytes", label, v)
	}
}

func (f *fields) BigDecimal(label string) (decimal.Decimal, error) {
	v, err := f.lookup("BigDecimal", label)
	if err != nil {
		return decimal.Decimal{}, err
	}
	switch v.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return decimal.Decimal{}, nil
	case bson.TypeInt32:
		return decimal.NewFromInt32(v.Int32()), nil
	case bson.TypeInt64:
		return decimal.NewFromInt(v.Int64()), nil
	case bson.TypeDouble:
		d := v.Double()
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return decimal.Decimal{}, mismatch("BigDecimal", label, v)
		}
		return decimal.NewFromFloat(d), nil
	case bson.TypeDecimal128, bson.TypeString:
		s, _ := render(v)
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Decimal{}, sqlerr.Coercion("BigDecimal", label, err)
		}
		return d, nil
	default:
		return decimal.Decimal{}, mismatch("BigDecimal", label, v)
	}
}

// Timestamp accepts dates, store timestamps and RFC 3339 strings.
func (f *fields) Timestamp(label string) (time.Time, error) {
	v, err := f.lookup("Timestamp", label)
	if err != nil {
		return time.Time{}, err
	}
	switch v.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return time.Time{}, nil
	case bson.TypeDateTime:
		return time.UnixMilli(v.DateTime()).UTC(), nil
	case bson.TypeTimestamp:
		t, _ := v.Timestamp()
		return time.Unix(int64(t), 0).UTC(), nil
	case bson.TypeString:
		ts, err := time.Parse(time.RFC3339, v.StringValue())
		if err != nil {
			return time.Time{}, sqlerr.Coercion("Timestamp", label, err)
		}
		return ts, nil
	default:
		return time.Time{}, mismatch("Timestamp", label, v)
	}
}

// URL parses label as an absolute URL.
func (f *fields) URL(label string) (*url.URL, error) {
	v, err := f.lookup("URL", label)
	if err != nil {
		return nil, err
	}
	if f.wasNull {
		return nil, nil
	}
	s, ok := v.StringValueOK()
	if !ok {
		return nil, mismatch("URL", label, v)
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, sqlerr.Coercion("URL", label, err)
	}
	if !u.IsAbs() {
		return nil, sqlerr.Coercion("URL", label, fmt.Errorf("%q is not absolute", s))
	}
	return u, nil
}

// Object returns the decoded Go value of label. Documents decode to bson.D
// and arrays to bson.A.
func (f *fields) Object(label string) (any, error) {
	v, err := f.lookup("Object", label)
	if err != nil {
		return nil, err
	}
	if f.wasNull {
		return nil, nil
	}
	out, err := decode(v)
	if err != nil {
		return nil, sqlerr.Coercion("Object", label, err)
	}
	return out, nil
}

func decode(v bson.RawValue) (any, error) {
	var out any
	if err := v.Unmarshal(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Array wraps an array or embedded document without registering its fields
// as columns.
func (f *fields) Array(label string) (*Array, error) {
	v, err := f.lookup("Array", label)
	if err != nil {
		return nil, err
	}
	if f.wasNull {
		return nil, nil
	}
	a, err := newArray(v)
	if err != nil {
		return nil, sqlerr.Coercion("Array", label, err)
	}
	return a, nil
}

func (f *fields) StringAt(index int) (string, error) {
	name, err := f.label("String", index)
	if err != nil {
		return "", err
	}
	return f.String(name)
}

func (f *fields) BoolAt(index int) (bool, error) {
	name, err := f.label("Bool", index)
	if err != nil {
		return false, err
	}
	return f.Bool(name)
}

func (f *fields) ByteAt(index int) (int8, error) {
	name, err := f.label("Byte", index)
	if err != nil {
		return 0, err
	}
	return f.Byte(name)
}

func (f *fields) ShortAt(index int) (int16, error) {
	name, err := f.label("Short", index)
	if err != nil {
		return 0, err
	}
	return f.Short(name)
}

func (f *fields) IntAt(index int) (int32, error) {
	name, err := f.label("Int", index)
	if err != nil {
		return 0, err
	}
	return f.Int(name)
}

func (f *fields) LongAt(index int) (int64, error) {
	name, err := f.label("Long", index)
	if err != nil {
		return 0, err
	}
	return f.Long(name)
}

func (f *fields) FloatAt(index int) (float32, error) {
	name, err := f.label("Float", index)
	if err != nil {
		return 0, err
	}
	return f.Float(name)
}

func (f *fields) DoubleAt(index int) (float64, error) {
	name, err := f.label("Double", index)
	if err != nil {
		return 0, err
	}
	return f.Double(name)
}

func (f *fields) BytesAt(index int) ([]byte, error) {
	name, err := f.label("Bytes", index)
	if err != nil {
		return nil, err
	}
	return f.Bytes(name)
}

func (f *fields) BigDecimalAt(index int) (decimal.Decimal, error) {
	name, err := f.label("BigDecimal", index)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return f.BigDecimal(name)
}

func (f *fields) TimestampAt(index int) (time.Time, error) {
	name, err := f.label("Timestamp", index)
	if err != nil {
		return time.Time{}, err
	}
	return f.Timestamp(name)
}

func (f *fields) URLAt(index int) (*url.URL, error) {
	name, err := f.label("URL", index)
	if err != nil {
		return nil, err
	}
	return f.URL(name)
}

func (f *fields) ObjectAt(index int) (any, error) {
	name, err := f.label("Object", index)
	if err != nil {
		return nil, err
	}
	return f.Object(name)
}

func (f *fields) ArrayAt(index int) (*Array, error) {
	name, err := f.label("Array", index)
	if err != nil {
		return nil, err
	}
	return f.Array(name)
}

func (f *fields) ValueAt(index int) (bson.RawValue, error) {
	name, err := f.label("Value", index)
	if err != nil {
		return bson.RawValue{}, err
	}
	return f.Value(name)
}
