package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bisegni/docsql/pkg/cursor"
	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/bisegni/docsql/pkg/plan"
	"github.com/bisegni/docsql/pkg/planner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// runCommand submits c on conn and prints the result to w, or only its plan
// when --explain is set.
func runCommand(ctx context.Context, w io.Writer, conn *engine.Conn, c *engine.Command) error {
	if QueryExplain {
		return explain(w, c)
	}

	ctx, cancel := commandContext(ctx)
	defer cancel()

	stmt, err := conn.CreateStatement()
	if err != nil {
		return err
	}
	defer stmt.Close()

	rs, err := stmt.Query(ctx, c)
	if err != nil {
		return err
	}
	return printRows(ctx, w, rs, cfg.Output, cfg.Pretty)
}

func explain(w io.Writer, c *engine.Command) error {
	fmt.Fprintln(w, "Command:")
	fmt.Fprintln(w, c.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Execution Plan:")
	_, err := fmt.Fprintln(w, plan.FormatPlan(planner.CreatePlan(c)))
	return err
}

// printRows drains rs into w. Table output is buffered because its columns
// are only known once every row has been read.
func printRows(ctx context.Context, w io.Writer, rs *cursor.Rows, format string, pretty bool) error {
	switch format {
	case "json":
		var records []parser.Record
		err := eachRecord(ctx, rs, func(rec parser.Record) error {
			records = append(records, rec)
			return nil
		})
		if err != nil {
			return err
		}
		return parser.WriteJSON(w, records, pretty)
	case "jsonl":
		return eachRecord(ctx, rs, func(rec parser.Record) error {
			return parser.WriteJSONL(w, []parser.Record{rec}, pretty)
		})
	default:
		return printTable(ctx, w, rs)
	}
}

func eachRecord(ctx context.Context, rs *cursor.Rows, fn func(parser.Record) error) error {
	for rs.Next(ctx) {
		doc, err := rs.Document()
		if err != nil {
			return err
		}
		var rec parser.Record
		if err := bson.Unmarshal(doc, &rec); err != nil {
			return fmt.Errorf("row %d: %w", rs.RowNumber(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rs.Err()
}

var cellEscaper = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func printTable(ctx context.Context, w io.Writer, rs *cursor.Rows) error {
	var rows []map[string]string
	for rs.Next(ctx) {
		doc, err := rs.Document()
		if err != nil {
			return err
		}
		elems, err := doc.Elements()
		if err != nil {
			return err
		}
		row := make(map[string]string, len(elems))
		for _, e := range elems {
			s, err := rs.String(e.Key())
			if err != nil {
				return err
			}
			if rs.WasNull() {
				s = "NULL"
			}
			row[e.Key()] = cellEscaper.Replace(s)
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return err
	}

	columns := rs.Metadata().Columns()
	if len(columns) > 0 {
		cells := make([][]string, len(rows))
		for i, row := range rows {
			cells[i] = make([]string, len(columns))
			for j, c := range columns {
				cells[i][j] = row[c]
			}
		}
		if _, err := fmt.Fprintln(w, renderTable(columns, cells)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return err
}

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// renderTable draws a bordered table. Widths are measured in terminal cells,
// so wide runes keep the columns aligned.
func renderTable(columns []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })
	return t.String()
}
