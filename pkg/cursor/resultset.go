package cursor

import (
	"context"
	"net/url"
	"time"

	"github.com/bisegni/docsql/pkg/schema"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ResultSet is the tabular view consumed by callers. Index arguments are
// 1-based and resolve through Metadata.
type ResultSet interface {
	Next(ctx context.Context) bool
	Err() error
	Metadata() *schema.Metadata
	Document() (bson.Raw, error)
	WasNull() bool
	Close() error
	IsClosed() bool

	String(label string) (string, error)
	Bool(label string) (bool, error)
	Byte(label string) (int8, error)
	Short(label string) (int16, error)
	Int(label string) (int32, error)
	Long(label string) (int64, error)
	Float(label string) (float32, error)
	Double(label string) (float64, error)
	Bytes(label string) ([]byte, error)
	BigDecimal(label string) (decimal.Decimal, error)
	Timestamp(label string) (time.Time, error)
	URL(label string) (*url.URL, error)
	Object(label string) (any, error)
	Array(label string) (*Array, error)
	Value(label string) (bson.RawValue, error)

	StringAt(index int) (string, error)
	BoolAt(index int) (bool, error)
	ByteAt(index int) (int8, error)
	ShortAt(index int) (int16, error)
	IntAt(index int) (int32, error)
	LongAt(index int) (int64, error)
	FloatAt(index int) (float32, error)
	DoubleAt(index int) (float64, error)
	BytesAt(index int) ([]byte, error)
	BigDecimalAt(index int) (decimal.Decimal, error)
	TimestampAt(index int) (time.Time, error)
	URLAt(index int) (*url.URL, error)
	ObjectAt(index int) (any, error)
	ArrayAt(index int) (*Array, error)
	ValueAt(index int) (bson.RawValue, error)
}

var (
	_ ResultSet = (*Rows)(nil)
	_ ResultSet = (*SingleRow)(nil)
)

// Operation names a cursor capability outside forward reading.
type Operation int

const (
	OpPrevious Operation = iota
	OpFirst
	OpLast
	OpAbsolute
	OpRelative
	OpBeforeFirst
	OpAfterLast
	OpUpdateRow
	OpInsertRow
	OpDeleteRow
	OpRefreshRow
	OpMoveToInsertRow
	OpCursorName
)

var opNames = [...]string{
	OpPrevious:        "Previous",
	OpFirst:           "First",
	OpLast:            "Last",
	OpAbsolute:        "Absolute",
	OpRelative:        "Relative",
	OpBeforeFirst:     "BeforeFirst",
	OpAfterLast:       "AfterLast",
	OpUpdateRow:       "UpdateRow",
	OpInsertRow:       "InsertRow",
	OpDeleteRow:       "DeleteRow",
	OpRefreshRow:      "RefreshRow",
	OpMoveToInsertRow: "MoveToInsertRow",
	OpCursorName:      "CursorName",
}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "Unknown"
	}
	return opNames[op]
}
