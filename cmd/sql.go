package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/translate"
	"github.com/spf13/cobra"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <SELECT statement>",
	Short: "Translate a SELECT statement into a command and run it",
	Long: `Translate a SELECT statement into a find or aggregate command and run it.
With --explain the translated command and its plan are printed instead.

Supported: field lists with aliases, COUNT/SUM/AVG/MIN/MAX, WHERE with
comparisons, LIKE, IN, IS [NOT] NULL, AND/OR, GROUP BY, ORDER BY, LIMIT, OFFSET.

Examples:
  docsql sql "SELECT name, age FROM people WHERE age >= 18 ORDER BY age DESC LIMIT 5"
  docsql sql "SELECT item, SUM(qty) AS total FROM sales GROUP BY item"
  docsql sql --explain "SELECT * FROM people WHERE name LIKE 'a%'"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := translateSQL(strings.Join(args, " "))
		if err != nil {
			return err
		}
		if QueryExplain {
			return explain(os.Stdout, c)
		}
		return withConn(cmd.Context(), func(conn *engine.Conn) error {
			return runCommand(cmd.Context(), os.Stdout, conn, c)
		})
	},
}

func translateSQL(statement string) (*engine.Command, error) {
	doc, err := translate.Translate(statement)
	if err != nil {
		return nil, fmt.Errorf("failed to translate query: %w", err)
	}
	return engine.CommandFromDocument(doc)
}
