package parser

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func field(rec Record, key string) any {
	for _, e := range rec {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, source string) []Record {
	t.Helper()
	parser, err := NewParser(source)
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}
	defer parser.Close()

	records, err := parser.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return records
}

func TestNewParser(t *testing.T) {
	parser, err := NewParser(writeFile(t, "test.json", `[{"name": "Alice", "age": 30}]`))
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}
	defer parser.Close()

	if parser.IsJSONL() {
		t.Error("Expected JSON file to not be detected as JSONL")
	}

	if _, err := NewParser(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestReadJSON(t *testing.T) {
	records := readAll(t, writeFile(t, "test.json", `[{"name": "Alice", "age": 30}, {"name": "Bob", "age": 25}]`))

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if field(records[0], "name") != "Alice" {
		t.Errorf("Expected first record name to be Alice, got %v", field(records[0], "name"))
	}
	if field(records[0], "age") != int32(30) {
		t.Errorf("Expected age to decode as int32 30, got %T %v", field(records[0], "age"), field(records[0], "age"))
	}
}

func TestReadJSONL(t *testing.T) {
	path := writeFile(t, "test.jsonl", "{\"name\": \"Alice\", \"age\": 30}\n{\"name\": \"Bob\", \"age\": 25}")

	parser, err := NewParser(path)
	if err != nil {
		t.Fatal(err)
	}
	defer parser.Close()

	records, err := parser.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	if !parser.IsJSONL() {
		t.Error("Expected JSONL file to be detected as JSONL")
	}
}

func TestReadPreservesKeyOrder(t *testing.T) {
	records := readAll(t, `{"z": 1, "a": 2, "m": {"y": 1, "b": 2}}`)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	var keys []string
	for _, e := range records[0] {
		keys = append(keys, e.Key)
	}
	if strings.Join(keys, ",") != "z,a,m" {
		t.Errorf("Expected key order z,a,m, got %v", keys)
	}

	nested, ok := field(records[0], "m").(bson.D)
	if !ok {
		t.Fatalf("Expected nested document as bson.D, got %T", field(records[0], "m"))
	}
	if nested[0].Key != "y" {
		t.Errorf("Expected nested key order preserved, got %v", nested)
	}
}

func TestReadExtendedJSON(t *testing.T) {
	records := readAll(t, `{"_id": {"$oid": "5f1d7f8e2b3c4a5d6e7f8091"}, "n": {"$numberLong": "7"}, "when": {"$date": "2024-01-02T03:04:05Z"}}`)

	if _, ok := field(records[0], "_id").(bson.ObjectID); !ok {
		t.Errorf("Expected ObjectID, got %T", field(records[0], "_id"))
	}
	if field(records[0], "n") != int64(7) {
		t.Errorf("Expected int64 7, got %T", field(records[0], "n"))
	}
	if _, ok := field(records[0], "when").(bson.DateTime); !ok {
		t.Errorf("Expected DateTime, got %T", field(records[0], "when"))
	}
}

func TestReadJSONNested(t *testing.T) {
	records := readAll(t, writeFile(t, "nested.json", `[
		{"name": "Alice", "info": {"city": "New York", "hobbies": ["reading", "cycling"]}},
		{"name": "Bob", "info": {"city": "London", "hobbies": ["drawing"]}}
	]`))

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	info, ok := field(records[0], "info").(bson.D)
	if !ok {
		t.Fatalf("Expected info to be a document, got %T", field(records[0], "info"))
	}
	if field(info, "city") != "New York" {
		t.Errorf("Expected city New York, got %v", field(info, "city"))
	}
	if hobbies, ok := field(info, "hobbies").(bson.A); !ok || len(hobbies) != 2 {
		t.Errorf("Expected 2 hobbies, got %v", field(info, "hobbies"))
	}
}

func TestReadJSONConcatenated(t *testing.T) {
	records := readAll(t, writeFile(t, "concat.json", `{"name": "Alice"}{"name": "Bob"}`))
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"JSON", "malformed.json", `[{"name": "Alice", "age": 30}, {"name": "Bob", "age": 25`},
		{"JSONL", "malformed.jsonl", "{\"name\": \"Alice\"}\n{\"name\": \"Bob\", \"age\": 25\n{\"name\": \"Charlie\"}"},
		{"NotAnObject", "scalar.json", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := NewParser(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatal(err)
			}
			defer parser.Close()

			if _, err := parser.ReadAll(); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestReadJSONLEmptyLines(t *testing.T) {
	records := readAll(t, writeFile(t, "empty_lines.jsonl", "{\"name\": \"Alice\"}\n\n{\"name\": \"Bob\"}\n"))
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
}

func TestInlineJSON(t *testing.T) {
	parser, err := NewParser(`[{"name": "Alice"}, {"name": "Bob"}]`)
	if err != nil {
		t.Fatal(err)
	}
	defer parser.Close()

	records, err := parser.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	if parser.IsJSONL() {
		t.Error("Expected inline JSON to not be detected as JSONL")
	}
}

func TestEmptyFile(t *testing.T) {
	records := readAll(t, writeFile(t, "empty.json", ""))
	if len(records) != 0 {
		t.Errorf("Expected 0 records for empty file, got %d", len(records))
	}

	records = readAll(t, writeFile(t, "empty_array.json", "[]"))
	if len(records) != 0 {
		t.Errorf("Expected 0 records for empty array, got %d", len(records))
	}
}

func TestReadStreaming(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"JSONL", "stream.jsonl", "{\"id\": 1}\n{\"id\": 2}\n{\"id\": 3}"},
		{"JSONArray", "stream.json", `[{"id": 1}, {"id": 2}, {"id": 3}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := NewParser(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatal(err)
			}
			defer parser.Close()

			var count int32
			for {
				rec, err := parser.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("Read failed: %v", err)
				}
				count++
				if field(rec, "id") != count {
					t.Errorf("Expected id %d, got %v", count, field(rec, "id"))
				}
			}
			if count != 3 {
				t.Errorf("Expected 3 records, got %d", count)
			}
		})
	}
}

func TestReadText(t *testing.T) {
	inline := `{"filter": {}}`
	if got, err := ReadText("  " + inline); err != nil || got != inline {
		t.Errorf("ReadText(inline) = %q, %v", got, err)
	}

	path := writeFile(t, "cmd.json", inline)
	if got, err := ReadText(path); err != nil || got != inline {
		t.Errorf("ReadText(file) = %q, %v", got, err)
	}

	if _, err := ReadText(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestWrite(t *testing.T) {
	records := []Record{
		{{Key: "name", Value: "Alice"}, {Key: "age", Value: int32(30)}},
		{{Key: "name", Value: "Bob"}},
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, records, false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "[{\"name\":\"Alice\",\"age\":30},{\"name\":\"Bob\"}]\n" {
		t.Errorf("WriteJSON = %q", got)
	}

	buf.Reset()
	if err := WriteJSONL(&buf, records, false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\"name\":\"Alice\",\"age\":30}\n{\"name\":\"Bob\"}\n" {
		t.Errorf("WriteJSONL = %q", got)
	}

	buf.Reset()
	if err := WriteJSON(&buf, records[:1], true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\n  {") {
		t.Errorf("Expected indented output, got %q", buf.String())
	}
}
