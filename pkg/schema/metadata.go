package schema

import (
	"log/slog"

	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/metrics"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// DisplaySize is the display width reported for every column.
const DisplaySize = 25

// Nullability of a column.
type Nullability int

const (
	NoNulls Nullability = iota
	Nullable
	NullableUnknown
)

// Metadata is the column registry of one result. Columns are appended in the
// order they are first seen and keep the type they were first seen with, so
// the view only grows while a cursor advances.
//
// A Metadata belongs to a single cursor and is not safe for concurrent use.
type Metadata struct {
	collection string
	order      []string
	types      map[string]bson.Type
	log        *slog.Logger
}

// NewMetadata creates an empty registry for a result over collection.
func NewMetadata(collection string) *Metadata {
	return &Metadata{
		collection: collection,
		types:      make(map[string]bson.Type),
		log:        logger.Get().With("collection", collection),
	}
}

// Register appends name with type t unless name is already registered.
func (m *Metadata) Register(name string, t bson.Type) {
	if _, ok := m.types[name]; ok {
		return
	}
	m.types[name] = t
	m.order = append(m.order, name)
	metrics.ColumnsRegistered.Inc()
	m.log.Debug("register column", "index", len(m.order), "name", name, "type", t.String())
}

// ColumnCount returns the number of columns registered so far.
func (m *Metadata) ColumnCount() int {
	return len(m.order)
}

// ColumnName returns the name of the column at the 1-based index.
func (m *Metadata) ColumnName(index int) (string, error) {
	if index < 1 || index > len(m.order) {
		return "", sqlerr.ColumnIndex(index, len(m.order))
	}
	return m.order[index-1], nil
}

// ColumnLabel is the same as ColumnName; documents carry no aliases.
func (m *Metadata) ColumnLabel(index int) (string, error) {
	return m.ColumnName(index)
}

// Columns returns a copy of the registered names in order.
func (m *Metadata) Columns() []string {
	return append([]string(nil), m.order...)
}

// FindColumn returns the 1-based index of name.
func (m *Metadata) FindColumn(name string) (int, bool) {
	if _, ok := m.types[name]; !ok {
		return 0, false
	}
	for i, n := range m.order {
		if n == name {
			return i + 1, true
		}
	}
	return 0, false
}

// StoreType returns the document-store type the column was registered with.
func (m *Metadata) StoreType(index int) (bson.Type, error) {
	name, err := m.ColumnName(index)
	if err != nil {
		return 0, err
	}
	return m.types[name], nil
}

func (m *Metadata) info(index int) (TypeInfo, error) {
	t, err := m.StoreType(index)
	if err != nil {
		return TypeInfo{}, err
	}
	return Lookup(t), nil
}

// ColumnType returns the SQL type code of the column.
func (m *Metadata) ColumnType(index int) (SQLType, error) {
	info, err := m.info(index)
	return info.Code, err
}

// ColumnTypeName returns the SQL type name of the column, empty if unknown.
func (m *Metadata) ColumnTypeName(index int) (string, error) {
	info, err := m.info(index)
	return info.Name, err
}

// ColumnClassName returns the Go type name of the column's decoded values.
func (m *Metadata) ColumnClassName(index int) (string, error) {
	info, err := m.info(index)
	return info.Class, err
}

// TableName returns the collection the result was read from.
func (m *Metadata) TableName(int) string { return m.collection }

// The remaining properties are fixed: nothing about nullability, precision
// or searchability is inferred from schemaless data.

// CatalogName is always empty.
func (m *Metadata) CatalogName(int) string { return "" }

// SchemaName is always empty.
func (m *Metadata) SchemaName(int) string { return "" }

// IsAutoIncrement is always false.
func (m *Metadata) IsAutoIncrement(int) bool { return false }

// IsCaseSensitive is always false.
func (m *Metadata) IsCaseSensitive(int) bool { return false }

// IsSearchable is always false.
func (m *Metadata) IsSearchable(int) bool { return false }

// IsCurrency is always false.
func (m *Metadata) IsCurrency(int) bool { return false }

// IsSigned is always false.
func (m *Metadata) IsSigned(int) bool { return false }

// IsNullable is always NullableUnknown: any document may lack the key.
func (m *Metadata) IsNullable(int) Nullability { return NullableUnknown }

// ColumnDisplaySize is DisplaySize for every column.
func (m *Metadata) ColumnDisplaySize(int) int { return DisplaySize }

// Precision is always 0.
func (m *Metadata) Precision(int) int { return 0 }

// Scale is always 0.
func (m *Metadata) Scale(int) int { return 0 }

// IsReadOnly is always true: cursors cannot write back.
func (m *Metadata) IsReadOnly(int) bool { return true }

// IsWritable is always false.
func (m *Metadata) IsWritable(int) bool { return false }

// IsDefinitelyWritable is always false.
func (m *Metadata) IsDefinitelyWritable(int) bool { return false }
