package cmd

import (
	"context"
	"os"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [command-document|file|-]",
	Short: "Run a command document and print the rows",
	Long: `Run a find or aggregate command document and print the resulting rows.

Supports:
  - Inline documents: docsql query '{"find": "people", "filter": {"age": {"$gt": 30}}}'
  - Files: docsql query cmd.json
  - Stdin: cat cmd.json | docsql query

An empty document selects every document of the default collection.

Examples:
  docsql query '{"find": "people", "sort": {"age": -1}, "limit": 10}'
  docsql query --collection people '{"filter": {"name": {"$regex": "^a"}}}'
  docsql query '{"find": "sales", "aggreg": [{"$group": {"_id": "$item", "total": {"$sum": "$qty"}}}]}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := "-"
		if len(args) > 0 {
			source = args[0]
		}
		return runQuery(cmd.Context(), source)
	},
}

// runQuery parses the command document read from source and runs it.
func runQuery(ctx context.Context, source string) error {
	text, err := parser.ReadText(source)
	if err != nil {
		return err
	}
	c, err := engine.ParseCommand(text)
	if err != nil {
		return err
	}
	if QueryExplain {
		return explain(os.Stdout, c)
	}
	return withConn(ctx, func(conn *engine.Conn) error {
		return runCommand(ctx, os.Stdout, conn, c)
	})
}
