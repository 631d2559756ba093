package cursor

import (
	"fmt"

	"github.com/bisegni/docsql/pkg/schema"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Array is a nested array or document handed out whole. It has no column
// structure of its own and reports BLOB as its base type.
type Array struct {
	elems []any
}

// NewArray wraps elems.
func NewArray(elems []any) *Array {
	return &Array{elems: elems}
}

// newArray decodes an array into its elements, or a document into a single
// element.
func newArray(v bson.RawValue) (*Array, error) {
	switch v.Type {
	case bson.TypeArray:
		values, err := v.Array().Values()
		if err != nil {
			return nil, err
		}
		elems := make([]any, 0, len(values))
		for _, e := range values {
			if e.Type == bson.TypeNull {
				elems = append(elems, nil)
				continue
			}
			d, err := decode(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, d)
		}
		return NewArray(elems), nil
	case bson.TypeEmbeddedDocument:
		d, err := decode(v)
		if err != nil {
			return nil, err
		}
		return NewArray([]any{d}), nil
	default:
		return nil, fmt.Errorf("%w: %s", errNotValid, v.Type)
	}
}

// Elements returns the whole sequence.
func (a *Array) Elements() []any {
	return a.elems
}

// Len is the number of elements.
func (a *Array) Len() int {
	return len(a.elems)
}

// Slice returns count elements starting at the 0-based offset.
func (a *Array) Slice(offset, count int) ([]any, error) {
	if offset < 0 || count < 0 || offset > len(a.elems) || count > len(a.elems)-offset {
		return nil, sqlerr.Coercion("Slice", "",
			fmt.Errorf("%d elements at offset %d outside %d elements", count, offset, len(a.elems)))
	}
	return a.elems[offset : offset+count], nil
}

// BaseType is BLOB whatever the elements are.
func (a *Array) BaseType() schema.SQLType { return schema.Blob }

// BaseTypeName is the name of BaseType.
func (a *Array) BaseTypeName() string { return schema.Blob.String() }

// ResultSet always returns nil: elements cannot be iterated as rows.
func (a *Array) ResultSet() ResultSet { return nil }

// Free is a no-op; the elements are ordinary Go values.
func (a *Array) Free() {}
