package cmd

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/bisegni/docsql/pkg/config"
	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/store/filestore"
	"github.com/charmbracelet/lipgloss"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func testConn(t *testing.T, output string) *engine.Conn {
	t.Helper()
	prev := cfg
	cfg = &config.Config{Output: output}
	t.Cleanup(func() { cfg = prev })

	st := filestore.NewMemory(map[string][]bson.D{
		"people": {
			{{Key: "_id", Value: int32(1)}, {Key: "name", Value: "ann"}, {Key: "age", Value: int32(30)}},
			{{Key: "_id", Value: int32(2)}, {Key: "name", Value: "bob"}, {Key: "age", Value: int32(35)}, {Key: "extra", Value: "x"}},
			{{Key: "_id", Value: int32(3)}, {Key: "name", Value: "cid"}, {Key: "age", Value: nil}},
		},
	})
	conn := engine.NewConn(st, engine.WithCollection("people"))
	t.Cleanup(func() { conn.Close(context.Background()) })
	return conn
}

func TestPrintTable(t *testing.T) {
	conn := testConn(t, "table")
	c, err := engine.ParseCommand(`{"filter": {}, "sort": {"_id": 1}}`)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := runCommand(context.Background(), &buf, conn, c); err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("Expected bordered header, 3 rows and footer, got:\n%s", buf.String())
	}
	if got := strings.Join(cells(lines[1]), ","); got != "_id,name,age,extra" {
		t.Errorf("Expected columns from the whole result, got %q", got)
	}
	if got := cells(lines[4]); len(got) != 4 || got[3] != "x" {
		t.Errorf("Unexpected second row %q", lines[4])
	}
	if got := cells(lines[5]); len(got) != 4 || got[2] != "NULL" || got[3] != "" {
		t.Errorf("Expected NULL cell for null age, got %q", lines[5])
	}
	if lines[7] != "(3 rows)" {
		t.Errorf("Unexpected footer %q", lines[7])
	}
}

// cells splits a rendered table line on its column borders.
func cells(line string) []string {
	parts := strings.Split(line, "│")
	if len(parts) < 3 {
		return nil
	}
	out := parts[1 : len(parts)-1]
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

// borderOffsets returns the display column of every vertical border.
func borderOffsets(line string) []int {
	var offsets []int
	col := 0
	for _, r := range line {
		if r == '│' {
			offsets = append(offsets, col)
		}
		col += lipgloss.Width(string(r))
	}
	return offsets
}

func TestRenderTableWideRunes(t *testing.T) {
	out := renderTable([]string{"name", "n"}, [][]string{{"東京都", "1"}, {"abcdef", "2"}})
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("Expected 6 lines, got:\n%s", out)
	}

	want := borderOffsets(lines[1])
	if len(want) != 3 {
		t.Fatalf("Expected 3 borders in header %q", lines[1])
	}
	for _, line := range lines[3:5] {
		if got := borderOffsets(line); !reflect.DeepEqual(got, want) {
			t.Errorf("Row %q borders at %v, header at %v", line, got, want)
		}
	}
	width := lipgloss.Width(lines[0])
	for _, line := range lines {
		if lipgloss.Width(line) != width {
			t.Errorf("Line %q is %d cells wide, want %d", line, lipgloss.Width(line), width)
		}
	}
}

func TestPrintJSON(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"jsonl", "{\"name\":\"ann\"}\n{\"name\":\"bob\"}\n"},
		{"json", "[{\"name\":\"ann\"},{\"name\":\"bob\"}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			conn := testConn(t, tt.output)
			c, err := engine.ParseCommand(`{"filter": {"_id": {"$lt": 3}}, "sort": {"_id": 1}, "projection": {"name": 1, "_id": 0}}`)
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			if err := runCommand(context.Background(), &buf, conn, c); err != nil {
				t.Fatalf("runCommand failed: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestEvalLine(t *testing.T) {
	conn := testConn(t, "jsonl")
	ctx := context.Background()

	tests := []struct {
		line    string
		want    string
		quit    bool
		wantErr bool
	}{
		{line: "   "},
		{line: `{"filter": {"name": "ann"}, "projection": {"_id": 0, "age": 1}}`, want: `{"age":30}`},
		{line: "SELECT name FROM people WHERE _id = 2", want: `{"name":"bob"}`},
		{line: `:update {"update": "people", "updates": [{"q": {"_id": 3}, "u": {"$set": {"age": 41}}}]}`, want: "1 document(s) modified"},
		{line: `{"filter": {"age": 41}, "projection": {"_id": 0, "name": 1}}`, want: `{"name":"cid"}`},
		{line: ":explain SELECT name FROM people", want: "Execution Plan:"},
		{line: ":use other", want: ""},
		{line: `{"filter": {}}`, want: ""},
		{line: ":use", wantErr: true},
		{line: ":bogus", wantErr: true},
		{line: `{"filter": 1}`, wantErr: true},
		{line: "QUIT", quit: true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		quit, err := evalLine(ctx, &buf, conn, tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("evalLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if quit != tt.quit {
			t.Errorf("evalLine(%q) quit = %v, want %v", tt.line, quit, tt.quit)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("evalLine(%q) output %q does not contain %q", tt.line, buf.String(), tt.want)
		}
	}
	if conn.Collection() != "other" {
		t.Errorf("Expected :use to change the collection, got %q", conn.Collection())
	}
}

func TestFindDocument(t *testing.T) {
	t.Cleanup(func() {
		findFilter, findSort, findProjection = "{}", "", ""
		findLimit, findSkip, findBatchSize = 0, 0, 0
	})
	err := findCmd.Flags().Parse([]string{"--filter", `{"age": {"$gt": 30}}`, "--sort", `{"age": -1}`, "--limit", "2"})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := findDocument(findCmd, "people")
	if err != nil {
		t.Fatalf("findDocument failed: %v", err)
	}
	c, err := engine.CommandFromDocument(doc)
	if err != nil {
		t.Fatalf("CommandFromDocument failed: %v", err)
	}
	want := `{"find":"people","filter":{"age":{"$gt":30}},"sort":{"age":-1},"limit":2}`
	if got := c.String(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestGatherStats(t *testing.T) {
	conn := testConn(t, "table")
	stmt, err := conn.CreateStatement()
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()
	rs, err := stmt.ExecuteQuery(context.Background(), `{}`)
	if err != nil {
		t.Fatal(err)
	}

	stats, err := gatherStats(context.Background(), rs)
	if err != nil {
		t.Fatalf("gatherStats failed: %v", err)
	}
	if stats.rows != 3 || len(stats.columns) != 4 {
		t.Fatalf("Expected 3 rows and 4 columns, got %d and %d", stats.rows, len(stats.columns))
	}
	age := stats.columns[2]
	if age.name != "age" || age.sqlType != "INTEGER" || age.presence != 3 {
		t.Errorf("Unexpected age stats %+v", age)
	}
	if age.valueBy[bson.TypeNull.String()] != 1 {
		t.Errorf("Expected one null age, got %v", age.valueBy)
	}

	var buf bytes.Buffer
	if err := printStats(&buf, stats); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Total rows: 3") || !strings.Contains(buf.String(), "4. extra VARCHAR") {
		t.Errorf("Unexpected stats output:\n%s", buf.String())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		kind engine.Kind
	}{
		{`{"filter": {}}`, engine.KindFind},
		{`{"find": "x", "aggreg": [{"$match": {}}]}`, engine.KindAggregate},
		{"select item, COUNT(*) AS n FROM sales GROUP BY item", engine.KindAggregate},
		{"", engine.KindFind},
	}
	for _, tt := range tests {
		c, err := classify(tt.text)
		if err != nil {
			t.Errorf("classify(%q) failed: %v", tt.text, err)
			continue
		}
		if c.Kind != tt.kind {
			t.Errorf("classify(%q) kind = %s, want %s", tt.text, c.Kind, tt.kind)
		}
	}
	if _, err := classify(`{"filter": {}, "aggreg": []}`); err == nil {
		t.Error("Expected error for filter with aggreg")
	}
}
