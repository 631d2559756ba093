package cursor

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/bisegni/docsql/pkg/schema"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/bisegni/docsql/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// mockCursor records whether Close reached the store.
type mockCursor struct {
	*store.SliceCursor
	closed int
}

func (m *mockCursor) Close(ctx context.Context) error {
	m.closed++
	return m.SliceCursor.Close(ctx)
}

func newRows(t *testing.T, docs ...bson.D) (*Rows, *mockCursor) {
	t.Helper()
	raws, err := store.MarshalAll(docs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	src := &mockCursor{SliceCursor: store.NewSliceCursor(raws)}
	return NewRows(src, schema.NewMetadata("test")), src
}

func mustRaw(t *testing.T, d bson.D) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestColumnOrderIsStable(t *testing.T) {
	ctx := context.Background()
	rows, _ := newRows(t,
		bson.D{{Key: "b", Value: 1}, {Key: "a", Value: "x"}},
		bson.D{{Key: "c", Value: true}, {Key: "a", Value: 2}, {Key: "b", Value: 3.5}},
	)

	if !rows.Next(ctx) {
		t.Fatalf("Next failed: %v", rows.Err())
	}
	if got := rows.Metadata().Columns(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("columns after row 1 = %v", got)
	}

	if !rows.Next(ctx) {
		t.Fatalf("Next failed: %v", rows.Err())
	}
	if got := rows.Metadata().Columns(); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Errorf("columns after row 2 = %v", got)
	}

	// a keeps the type it was first seen with
	typ, _ := rows.Metadata().ColumnType(2)
	if typ != schema.Varchar {
		t.Errorf("ColumnType(2) = %v, want VARCHAR", typ)
	}

	if rows.Next(ctx) {
		t.Fatal("expected exhaustion")
	}
	if rows.Err() != nil {
		t.Fatalf("unexpected error: %v", rows.Err())
	}
	if rows.RowNumber() != 2 {
		t.Errorf("RowNumber = %d, want 2", rows.RowNumber())
	}
	if _, err := rows.Document(); !errors.Is(err, sqlerr.ErrCoercion) {
		t.Errorf("Document after exhaustion: %v", err)
	}
}

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	oid := bson.NewObjectID()
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows, _ := newRows(t, bson.D{
		{Key: "i32", Value: int32(42)},
		{Key: "i64", Value: int64(1) << 40},
		{Key: "dbl", Value: 2.5},
		{Key: "whole", Value: 7.0},
		{Key: "num", Value: "123"},
		{Key: "flag", Value: true},
		{Key: "name", Value: "ada"},
		{Key: "id", Value: oid},
		{Key: "nested", Value: bson.D{{Key: "x", Value: int32(1)}}},
		{Key: "list", Value: bson.A{int32(1), "two"}},
		{Key: "when", Value: bson.NewDateTimeFromTime(when)},
		{Key: "link", Value: "https://example.com/a"},
		{Key: "empty", Value: nil},
	})
	if !rows.Next(ctx) {
		t.Fatal(rows.Err())
	}

	t.Run("String", func(t *testing.T) {
		tests := []struct {
			label    string
			want     string
			wantNull bool
		}{
			{label: "i32", want: "42"},
			{label: "dbl", want: "2.5"},
			{label: "empty", want: "", wantNull: true},
			{label: "flag", want: "true"},
			{label: "name", want: "ada"},
			{label: "id", want: oid.Hex()},
			{label: "nested", want: `{"x":1}`},
			{label: "list", want: `[1,"two"]`},
		}
		for _, tt := range tests {
			got, err := rows.String(tt.label)
			if err != nil {
				t.Errorf("String(%s): %v", tt.label, err)
				continue
			}
			if got != tt.want {
				t.Errorf("String(%s) = %q, want %q", tt.label, got, tt.want)
			}
			if rows.WasNull() != tt.wantNull {
				t.Errorf("String(%s): WasNull = %v, want %v", tt.label, rows.WasNull(), tt.wantNull)
			}
		}
	})

	t.Run("Int", func(t *testing.T) {
		tests := []struct {
			label   string
			want    int32
			wantErr bool
		}{
			{"i32", 42, false},
			{"whole", 7, false},
			{"num", 123, false},
			{"i64", 0, true},
			{"dbl", 0, true},
			{"name", 0, true},
			{"flag", 0, true},
		}
		for _, tt := range tests {
			got, err := rows.Int(tt.label)
			if tt.wantErr {
				if !errors.Is(err, sqlerr.ErrCoercion) {
					t.Errorf("Int(%s) error = %v, want coercion", tt.label, err)
				}
				continue
			}
			if err != nil || got != tt.want {
				t.Errorf("Int(%s) = %d, %v; want %d", tt.label, got, err, tt.want)
			}
		}
	})

	t.Run("Numeric", func(t *testing.T) {
		if v, err := rows.Long("i64"); err != nil || v != 1<<40 {
			t.Errorf("Long = %d, %v", v, err)
		}
		if v, err := rows.Double("i32"); err != nil || v != 42 {
			t.Errorf("Double(i32) = %v, %v", v, err)
		}
		if v, err := rows.Double("num"); err != nil || v != 123 {
			t.Errorf("Double(num) = %v, %v", v, err)
		}
		if v, err := rows.Short("num"); err != nil || v != 123 {
			t.Errorf("Short = %d, %v", v, err)
		}
		if _, err := rows.Byte("i64"); !errors.Is(err, sqlerr.ErrCoercion) {
			t.Errorf("Byte overflow error = %v", err)
		}
		if v, err := rows.Float("dbl"); err != nil || v != 2.5 {
			t.Errorf("Float = %v, %v", v, err)
		}
		if v, err := rows.BigDecimal("dbl"); err != nil || v.String() != "2.5" {
			t.Errorf("BigDecimal = %v, %v", v, err)
		}
	})

	t.Run("Other", func(t *testing.T) {
		if v, err := rows.Bool("flag"); err != nil || !v {
			t.Errorf("Bool = %v, %v", v, err)
		}
		if _, err := rows.Bool("num"); !errors.Is(err, sqlerr.ErrCoercion) {
			t.Errorf("Bool(num) error = %v", err)
		}
		if v, err := rows.Timestamp("when"); err != nil || !v.Equal(when) {
			t.Errorf("Timestamp = %v, %v", v, err)
		}
		if u, err := rows.URL("link"); err != nil || u.Host != "example.com" {
			t.Errorf("URL = %v, %v", u, err)
		}
		if _, err := rows.URL("name"); !errors.Is(err, sqlerr.ErrCoercion) {
			t.Errorf("URL(name) error = %v", err)
		}
		obj, err := rows.Object("nested")
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := obj.(bson.D); !ok {
			t.Errorf("Object(nested) = %T, want bson.D", obj)
		}
	})

	t.Run("ByIndex", func(t *testing.T) {
		idx, ok := rows.Metadata().FindColumn("name")
		if !ok {
			t.Fatal("name not registered")
		}
		if v, err := rows.StringAt(idx); err != nil || v != "ada" {
			t.Errorf("StringAt = %q, %v", v, err)
		}
		_, err := rows.StringAt(rows.Metadata().ColumnCount() + 1)
		if !errors.Is(err, sqlerr.ErrColumnIndex) || !errors.Is(err, sqlerr.ErrCoercion) {
			t.Errorf("StringAt out of range error = %v", err)
		}
	})
}

func TestMissingKey(t *testing.T) {
	rows, _ := newRows(t, bson.D{{Key: "present", Value: int32(1)}, {Key: "nothing", Value: nil}})
	if !rows.Next(context.Background()) {
		t.Fatal(rows.Err())
	}

	if v, err := rows.Int("missing_key"); err != nil || v != -1 {
		t.Errorf("Int(missing_key) = %d, %v; want -1, nil", v, err)
	}
	if v, err := rows.Long("missing_key"); err != nil || v != -1 {
		t.Errorf("Long(missing_key) = %d, %v; want -1, nil", v, err)
	}
	if _, err := rows.String("missing_key"); !errors.Is(err, sqlerr.ErrCoercion) {
		t.Errorf("String(missing_key) error = %v, want coercion", err)
	}
	if _, err := rows.Double("missing_key"); !errors.Is(err, sqlerr.ErrCoercion) {
		t.Errorf("Double(missing_key) error = %v, want coercion", err)
	}

	// a missing key is not a null
	if _, err := rows.String("nothing"); err != nil {
		t.Fatal(err)
	}
	if !rows.WasNull() {
		t.Fatal("WasNull should be true after reading null")
	}
	if v, err := rows.Int("missing_key"); err != nil || v != -1 || rows.WasNull() {
		t.Errorf("Int(missing_key) = %d, %v, WasNull %v; want -1, nil, false", v, err, rows.WasNull())
	}

	// a coercion failure leaves the cursor usable
	if v, err := rows.Int("present"); err != nil || v != 1 {
		t.Errorf("Int(present) = %d, %v", v, err)
	}
}

func TestIntegralDoubleRange(t *testing.T) {
	rows, _ := newRows(t, bson.D{
		{Key: "two63", Value: math.Ldexp(1, 63)},
		{Key: "minus63", Value: -math.Ldexp(1, 63)},
		{Key: "two31", Value: math.Ldexp(1, 31)},
		{Key: "max32", Value: float64(math.MaxInt32)},
	})
	if !rows.Next(context.Background()) {
		t.Fatal(rows.Err())
	}

	if v, err := rows.Long("two63"); !errors.Is(err, sqlerr.ErrCoercion) {
		t.Errorf("Long(two63) = %d, %v; want coercion error", v, err)
	}
	if v, err := rows.Long("minus63"); err != nil || v != math.MinInt64 {
		t.Errorf("Long(minus63) = %d, %v; want %d", v, err, int64(math.MinInt64))
	}
	if v, err := rows.Int("two31"); !errors.Is(err, sqlerr.ErrCoercion) {
		t.Errorf("Int(two31) = %d, %v; want coercion error", v, err)
	}
	if v, err := rows.Int("max32"); err != nil || v != math.MaxInt32 {
		t.Errorf("Int(max32) = %d, %v", v, err)
	}
}

func TestBytes(t *testing.T) {
	payload := []byte("hello, bytes")
	rows, _ := newRows(t, bson.D{
		{Key: "b64field", Value: base64.StdEncoding.EncodeToString(payload)},
		{Key: "bad", Value: "not base64!"},
		{Key: "bin", Value: bson.Binary{Subtype: 0, Data: payload}},
		{Key: "n", Value: int32(3)},
	})
	if !rows.Next(context.Background()) {
		t.Fatal(rows.Err())
	}

	tests := []struct {
		label   string
		want    []byte
		wantErr bool
	}{
		{"b64field", payload, false},
		{"bin", payload, false},
		{"bad", nil, true},
		{"n", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := rows.Bytes(tt.label)
			if tt.wantErr {
				if !errors.Is(err, sqlerr.ErrCoercion) {
					t.Errorf("error = %v, want coercion", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != string(tt.want) {
				t.Errorf("Bytes = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClose(t *testing.T) {
	rows, src := newRows(t, bson.D{{Key: "a", Value: int32(1)}})
	if !rows.Next(context.Background()) {
		t.Fatal(rows.Err())
	}

	if err := rows.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !rows.IsClosed() {
		t.Error("IsClosed should be true")
	}
	if src.closed != 1 {
		t.Errorf("store cursor closed %d times, want 1", src.closed)
	}

	checks := map[string]func() error{
		"String":   func() error { _, err := rows.String("a"); return err },
		"StringAt": func() error { _, err := rows.StringAt(1); return err },
		"Int":      func() error { _, err := rows.Int("a"); return err },
		"Long":     func() error { _, err := rows.Long("missing"); return err },
		"Bytes":    func() error { _, err := rows.Bytes("a"); return err },
		"Array":    func() error { _, err := rows.Array("a"); return err },
		"Document": func() error { _, err := rows.Document(); return err },
		"Perform":  func() error { return rows.Perform(OpFirst) },
	}
	for name, fn := range checks {
		if err := fn(); !errors.Is(err, sqlerr.ErrClosed) {
			t.Errorf("%s after Close: %v, want ErrClosed", name, err)
		}
	}
	if rows.Next(context.Background()) {
		t.Error("Next after Close should be false")
	}
}

func TestPerformUnsupported(t *testing.T) {
	rows, _ := newRows(t)
	for op := OpPrevious; op <= OpCursorName; op++ {
		if err := rows.Perform(op); !errors.Is(err, sqlerr.ErrFeatureNotSupported) {
			t.Errorf("Perform(%s) = %v, want not supported", op, err)
		}
	}
}

func TestSingleRow(t *testing.T) {
	doc := mustRaw(t, bson.D{{Key: "name", Value: "x"}})
	row := NewSingleRow("people", "name", doc, bson.TypeString)

	got, err := row.StringAt(1)
	if err != nil || got != "x" {
		t.Errorf("StringAt(1) = %q, %v; want x", got, err)
	}
	if row.Next(context.Background()) {
		t.Error("Next should be false")
	}

	raw, err := row.StringAt(RawDocumentIndex)
	if err != nil || raw != `{"name":"x"}` {
		t.Errorf("StringAt(RawDocumentIndex) = %q, %v", raw, err)
	}

	typ, _ := row.Metadata().ColumnType(1)
	if typ != schema.Varchar {
		t.Errorf("ColumnType = %v, want VARCHAR", typ)
	}
	if row.Metadata().TableName(1) != "people" {
		t.Errorf("TableName = %q", row.Metadata().TableName(1))
	}

	row.Close()
	if _, err := row.StringAt(RawDocumentIndex); !errors.Is(err, sqlerr.ErrClosed) {
		t.Errorf("StringAt after Close: %v", err)
	}
}

func TestArray(t *testing.T) {
	rows, _ := newRows(t, bson.D{
		{Key: "list", Value: bson.A{bson.D{{Key: "a", Value: int32(1)}}, bson.D{{Key: "a", Value: int32(2)}}, int32(3)}},
		{Key: "doc", Value: bson.D{{Key: "k", Value: "v"}}},
		{Key: "scalar", Value: "s"},
	})
	if !rows.Next(context.Background()) {
		t.Fatal(rows.Err())
	}

	arr, err := rows.Array("list")
	if err != nil {
		t.Fatal(err)
	}
	if arr.Len() != 3 {
		t.Fatalf("Len = %d, want 3", arr.Len())
	}
	if arr.BaseType() != schema.Blob || arr.BaseTypeName() != "BLOB" {
		t.Errorf("base type = %v %q", arr.BaseType(), arr.BaseTypeName())
	}
	if arr.ResultSet() != nil {
		t.Error("ResultSet should be nil")
	}

	part, err := arr.Slice(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(part) != 2 || part[1] != int32(3) {
		t.Errorf("Slice(1, 2) = %v", part)
	}
	for _, r := range [][2]int{{0, -1}, {-1, 1}, {2, 2}, {2, math.MaxInt}, {math.MaxInt, 1}} {
		if _, err := arr.Slice(r[0], r[1]); err == nil {
			t.Errorf("Slice(%d, %d) should fail", r[0], r[1])
		}
	}

	doc, err := rows.Array("doc")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 1 {
		t.Errorf("document array Len = %d, want 1", doc.Len())
	}

	if _, err := rows.Array("scalar"); !errors.Is(err, sqlerr.ErrCoercion) {
		t.Errorf("Array(scalar) error = %v", err)
	}

	// nested keys are not registered as columns
	if _, ok := rows.Metadata().FindColumn("a"); ok {
		t.Error("nested field registered as column")
	}
}
