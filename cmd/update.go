package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [command-document|file|-]",
	Short: "Run an update or administrative command",
	Long: `Submit a store command such as update, insert or delete and print the
number of modified documents reported by the store.

Examples:
  docsql update '{"update": "people", "updates": [{"q": {"name": "ann"}, "u": {"$set": {"age": 31}}}]}'
  docsql update '{"insert": "people", "documents": [{"name": "dan"}]}'
  cat cmd.json | docsql update`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := "-"
		if len(args) > 0 {
			source = args[0]
		}
		text, err := parser.ReadText(source)
		if err != nil {
			return err
		}
		return withConn(cmd.Context(), func(conn *engine.Conn) error {
			return runUpdate(cmd.Context(), os.Stdout, conn, text)
		})
	},
}

func runUpdate(ctx context.Context, w io.Writer, conn *engine.Conn, text string) error {
	ctx, cancel := commandContext(ctx)
	defer cancel()

	stmt, err := conn.CreateStatement()
	if err != nil {
		return err
	}
	defer stmt.Close()

	n, err := stmt.ExecuteUpdate(ctx, text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d document(s) modified\n", n)
	return err
}
