package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bisegni/docsql/pkg/cursor"
	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [command-document|file|-]",
	Short: "Show the columns a query discovers",
	Long: `Run a command document and display the column registry built from its
result: column order, SQL type, and how many rows carried each value type.

Examples:
  docsql stats '{"find": "people"}'
  docsql stats --collection people '{"filter": {"age": {"$gt": 30}}}'
  cat cmd.json | docsql stats`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	source := "-"
	if len(args) > 0 {
		source = args[0]
	}
	text, err := parser.ReadText(source)
	if err != nil {
		return err
	}
	c, err := engine.ParseCommand(text)
	if err != nil {
		return err
	}

	return withConn(cmd.Context(), func(conn *engine.Conn) error {
		ctx, cancel := commandContext(cmd.Context())
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
		stats, err := gatherStats(ctx, rs)
		if err != nil {
			return err
		}
		return printStats(os.Stdout, stats)
	})
}

type columnStats struct {
	name     string
	sqlType  string
	class    string
	valueBy  map[string]int
	presence int
}

type resultStats struct {
	collection string
	rows       int
	columns    []*columnStats
}

// gatherStats drains rs, counting the value types seen under every key.
func gatherStats(ctx context.Context, rs *cursor.Rows) (*resultStats, error) {
	counts := make(map[string]map[string]int)
	for rs.Next(ctx) {
		doc, err := rs.Document()
		if err != nil {
			return nil, err
		}
		elems, err := doc.Elements()
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			if counts[e.Key()] == nil {
				counts[e.Key()] = make(map[string]int)
			}
			counts[e.Key()][e.Value().Type.String()]++
		}
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}

	meta := rs.Metadata()
	stats := &resultStats{collection: meta.TableName(0), rows: rs.RowNumber()}
	for i, name := range meta.Columns() {
		col := &columnStats{name: name, valueBy: counts[name]}
		col.sqlType, _ = meta.ColumnTypeName(i + 1)
		col.class, _ = meta.ColumnClassName(i + 1)
		if col.sqlType == "" {
			col.sqlType = "UNKNOWN"
		}
		for _, n := range col.valueBy {
			col.presence += n
		}
		stats.columns = append(stats.columns, col)
	}
	return stats, nil
}

func printStats(w io.Writer, stats *resultStats) error {
	fmt.Fprintf(w, "Collection: %s\n", stats.collection)
	fmt.Fprintf(w, "Total rows: %d\n", stats.rows)
	if len(stats.columns) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\nColumns:\n")
	for i, col := range stats.columns {
		fmt.Fprintf(w, "  %d. %s %s (%s), present in %d row(s)\n", i+1, col.name, col.sqlType, col.class, col.presence)

		types := make([]string, 0, len(col.valueBy))
		for typ := range col.valueBy {
			types = append(types, typ)
		}
		sort.Strings(types)
		for _, typ := range types {
			count := col.valueBy[typ]
			fmt.Fprintf(w, "    %s: %d (%.1f%%)\n", typ, count, float64(count)/float64(stats.rows)*100)
		}
	}
	return nil
}
