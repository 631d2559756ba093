package docdriver

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bisegni/docsql/pkg/sqlerr"
	"github.com/bisegni/docsql/pkg/store/filestore"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	st := filestore.NewMemory(map[string][]bson.D{
		"people": {
			{{Key: "_id", Value: int32(1)}, {Key: "name", Value: "ann"}, {Key: "age", Value: int32(30)}},
			{{Key: "_id", Value: int32(2)}, {Key: "name", Value: "bob"}, {Key: "age", Value: int32(35)}, {Key: "extra", Value: "x"}},
			{{Key: "_id", Value: int32(3)}, {Key: "name", Value: "cid"}},
		},
	})
	db := sql.OpenDB(NewConnector(st, "people"))
	t.Cleanup(func() { db.Close() })
	return db
}

type person struct {
	id   int64
	name string
	age  sql.NullInt64
}

func scanPeople(t *testing.T, rows *sql.Rows) []person {
	t.Helper()
	defer rows.Close()
	var out []person
	for rows.Next() {
		var p person
		if err := rows.Scan(&p.id, &p.name, &p.age); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows failed: %v", err)
	}
	return out
}

func TestQueryCommandDocument(t *testing.T) {
	db := openDB(t)
	rows, err := db.QueryContext(context.Background(), `{"filter": {}, "sort": {"_id": 1}}`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 3 || cols[0] != "_id" || cols[1] != "name" || cols[2] != "age" {
		t.Fatalf("columns = %v, want frozen from first document", cols)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		t.Fatal(err)
	}
	if got := types[1].DatabaseTypeName(); got != "VARCHAR" {
		t.Errorf("name type = %q, want VARCHAR", got)
	}
	if got := types[2].DatabaseTypeName(); got != "INTEGER" {
		t.Errorf("age type = %q, want INTEGER", got)
	}
	if nullable, ok := types[2].Nullable(); !ok || !nullable {
		t.Errorf("expected nullable column")
	}
	if got := types[2].ScanType().Kind().String(); got != "int64" {
		t.Errorf("age scan type = %s, want int64", got)
	}

	people := scanPeople(t, rows)
	if len(people) != 3 {
		t.Fatalf("got %d rows, want 3", len(people))
	}
	if people[0].name != "ann" || !people[0].age.Valid || people[0].age.Int64 != 30 {
		t.Errorf("unexpected first row %+v", people[0])
	}
	if people[2].age.Valid {
		t.Errorf("missing age should scan as NULL, got %+v", people[2])
	}
}

func TestQuerySelect(t *testing.T) {
	db := openDB(t)
	rows, err := db.Query("SELECT _id, name, age FROM people WHERE age > 31")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	people := scanPeople(t, rows)
	if len(people) != 1 || people[0].name != "bob" {
		t.Errorf("unexpected rows %+v", people)
	}
}

func TestQueryEmptyResult(t *testing.T) {
	db := openDB(t)
	rows, err := db.Query(`{"filter": {"name": "nobody"}}`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()
	if rows.Next() {
		t.Error("expected no rows")
	}
	if err := rows.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExec(t *testing.T) {
	db := openDB(t)
	res, err := db.Exec(`{"update": "people", "updates": [{"q": {"name": "cid"}, "u": {"$set": {"age": 40}}}]}`)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil || n != 1 {
		t.Errorf("RowsAffected = %d, %v, want 1", n, err)
	}

	var age int64
	if err := db.QueryRow(`{"filter": {"name": "cid"}, "projection": {"age": 1, "_id": 0}}`).Scan(&age); err != nil {
		t.Fatalf("QueryRow failed: %v", err)
	}
	if age != 40 {
		t.Errorf("age = %d, want 40", age)
	}
}

func TestUnsupported(t *testing.T) {
	db := openDB(t)
	if _, err := db.Begin(); !errors.Is(err, sqlerr.ErrFeatureNotSupported) {
		t.Errorf("Begin error = %v, want not supported", err)
	}
	if _, err := db.Query(`{"filter": {}}`, 1); err == nil {
		t.Error("expected placeholder arguments to be rejected")
	}
	if _, err := db.Query(`{"aggreg": [], "filter": {}}`); !errors.Is(err, sqlerr.ErrInvalidCommand) {
		t.Errorf("error = %v, want invalid command", err)
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want DSN
	}{
		{
			dsn:  "mongodb://localhost:27017/shop?collection=orders",
			want: DSN{URI: "mongodb://localhost:27017/shop", Database: "shop", Collection: "orders"},
		},
		{
			dsn:  "mongodb://user:pw@h1,h2/shop?replicaSet=rs0",
			want: DSN{URI: "mongodb://user:pw@h1,h2/shop?replicaSet=rs0", Database: "shop"},
		},
		{
			dsn:  "file:///var/data?collection=people",
			want: DSN{Dir: "/var/data", Collection: "people"},
		},
	}
	for _, tt := range tests {
		got, err := ParseDSN(tt.dsn)
		if err != nil {
			t.Fatalf("ParseDSN(%q) failed: %v", tt.dsn, err)
		}
		if *got != tt.want {
			t.Errorf("ParseDSN(%q) = %+v, want %+v", tt.dsn, *got, tt.want)
		}
	}

	for _, bad := range []string{"postgres://localhost/db", "file://", "::"} {
		if _, err := ParseDSN(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestOpenFileDSN(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "people.jsonl"), []byte("{\"_id\": 1, \"name\": \"ann\", \"age\": 30}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open(DriverName, "file://"+dir+"?collection=people")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	rows, err := db.Query(`{}`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	people := scanPeople(t, rows)
	if len(people) != 1 || people[0].name != "ann" {
		t.Errorf("unexpected rows %+v", people)
	}
}
