package cursor

import (
	"context"

	"github.com/bisegni/docsql/pkg/schema"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// RawDocumentIndex makes StringAt return the whole bound document.
const RawDocumentIndex = -100

// SingleRow exposes one materialized document as a one-column result. It is
// already positioned on its document; Next always reports no more rows.
type SingleRow struct {
	fields
}

// NewSingleRow binds doc with column declared as type t.
func NewSingleRow(collection, column string, doc bson.Raw, t bson.Type) *SingleRow {
	meta := schema.NewMetadata(collection)
	meta.Register(column, t)
	return &SingleRow{fields: fields{doc: doc, meta: meta}}
}

func (s *SingleRow) Next(context.Context) bool { return false }

func (s *SingleRow) Err() error { return nil }

func (s *SingleRow) Close() error {
	s.closed = true
	return nil
}

// StringAt resolves index like any cursor, except that RawDocumentIndex
// renders the bound document as relaxed Extended JSON.
func (s *SingleRow) StringAt(index int) (string, error) {
	if index != RawDocumentIndex {
		return s.fields.StringAt(index)
	}
	if s.closed {
		return "", sqlerr.Closed("String")
	}
	if s.doc == nil {
		return "", sqlerr.Coercion("String", "", errNoRow)
	}
	out, err := bson.MarshalExtJSON(s.doc, false, false)
	if err != nil {
		return "", sqlerr.Coercion("String", "", err)
	}
	return string(out), nil
}
