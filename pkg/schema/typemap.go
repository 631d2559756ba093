// Package schema maps document-store types onto tabular column types and
// keeps the column registry discovered from result documents.
package schema

import (
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// SQLType is a tabular type code. Values match the JDBC java.sql.Types
// constants so generic tooling recognises them.
type SQLType int32

const (
	Other     SQLType = 1111
	Array     SQLType = 2003
	Binary    SQLType = -2
	Blob      SQLType = 2004
	Boolean   SQLType = 16
	Double    SQLType = 8
	Integer   SQLType = 4
	BigInt    SQLType = -5
	Varchar   SQLType = 12
	Timestamp SQLType = 93

	// Unknown is returned for store types without a tabular equivalent.
	Unknown SQLType = math.MinInt32
)

// TypeInfo describes how values of one store type appear in a table.
type TypeInfo struct {
	Code SQLType
	// Name is the SQL type name, empty when Code is Unknown.
	Name string
	// Class names the Go type a decoded value of this store type has.
	Class string
}

var sqlTypes = map[bson.Type]struct {
	code SQLType
	name string
}{
	bson.TypeObjectID:         {Other, "OTHER"},
	bson.TypeArray:            {Array, "ARRAY"},
	bson.TypeBinary:           {Binary, "BINARY"},
	bson.TypeBoolean:          {Boolean, "BOOLEAN"},
	bson.TypeEmbeddedDocument: {Other, "OTHER"},
	bson.TypeDouble:           {Double, "DOUBLE"},
	bson.TypeInt32:            {Integer, "INTEGER"},
	bson.TypeInt64:            {BigInt, "BIGINT"},
	bson.TypeString:           {Varchar, "VARCHAR"},
	bson.TypeTimestamp:        {Timestamp, "TIMESTAMP"},
}

var classNames = map[bson.Type]string{
	bson.TypeDouble:           "float64",
	bson.TypeString:           "string",
	bson.TypeEmbeddedDocument: "bson.D",
	bson.TypeArray:            "bson.A",
	bson.TypeBinary:           "bson.Binary",
	bson.TypeUndefined:        "bson.Undefined",
	bson.TypeObjectID:         "bson.ObjectID",
	bson.TypeBoolean:          "bool",
	bson.TypeDateTime:         "bson.DateTime",
	bson.TypeNull:             "nil",
	bson.TypeRegex:            "bson.Regex",
	bson.TypeDBPointer:        "bson.DBPointer",
	bson.TypeJavaScript:       "bson.JavaScript",
	bson.TypeSymbol:           "bson.Symbol",
	bson.TypeCodeWithScope:    "bson.CodeWithScope",
	bson.TypeInt32:            "int32",
	bson.TypeTimestamp:        "bson.Timestamp",
	bson.TypeInt64:            "int64",
	bson.TypeDecimal128:       "bson.Decimal128",
	bson.TypeMinKey:           "bson.MinKey",
	bson.TypeMaxKey:           "bson.MaxKey",
}

// Lookup returns the tabular description of t. It never fails: types
// without a mapping report Unknown and an empty name.
func Lookup(t bson.Type) TypeInfo {
	info := TypeInfo{Code: Unknown, Class: classNames[t]}
	if m, ok := sqlTypes[t]; ok {
		info.Code = m.code
		info.Name = m.name
	}
	return info
}

func (t SQLType) String() string {
	switch t {
	case Blob:
		return "BLOB"
	case Unknown:
		return "UNKNOWN"
	}
	for _, m := range sqlTypes {
		if m.code == t {
			return m.name
		}
	}
	return "UNKNOWN"
}
