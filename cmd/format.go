package cmd

import (
	"os"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/spf13/cobra"
)

var (
	formatPretty    bool
	formatCanonical bool
)

var formatCmd = &cobra.Command{
	Use:   "format [command-document|file|-]",
	Short: "Normalize and pretty-print a command document",
	Long: `Validate a command document and print it in normalized form as relaxed or
canonical Extended JSON. Ignored keys are dropped.

Examples:
  docsql format '{"find": "people", "limit": 5, "filter": {"age": 30}}'
  docsql format --canonical cmd.json
  cat cmd.json | docsql format --pretty=false`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFormat,
}

func init() {
	formatCmd.Flags().BoolVar(&formatPretty, "pretty", true, "Pretty print output")
	formatCmd.Flags().BoolVar(&formatCanonical, "canonical", false, "Canonical Extended JSON (type-preserving)")
}

func runFormat(cmd *cobra.Command, args []string) error {
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

	out, err := parser.Marshal(c.Document(), formatCanonical, formatPretty)
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = os.Stdout.Write(out)
	return err
}
