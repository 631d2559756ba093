package cmd

import (
	"fmt"
	"strings"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [command-document|file|-]",
	Short: "Check a command document without running it",
	Long: `Parse a command document or SELECT statement and report how it would be
dispatched. Nothing is sent to the store.

Examples:
  docsql validate '{"find": "people", "filter": {"age": 30}}'
  docsql validate '{"filter": {}, "aggreg": []}'
  echo "SELECT name FROM people" | docsql validate`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	source := "-"
	if len(args) > 0 {
		source = args[0]
	}
	text, err := parser.ReadText(source)
	if err != nil {
		return err
	}

	c, err := classify(text)
	if err != nil {
		fmt.Printf("❌ Validation failed: %v\n", err)
		return err
	}

	collection := c.Collection
	if collection == "" {
		collection = "<default>"
	}
	switch c.Kind {
	case engine.KindAggregate:
		fmt.Printf("✅ Valid aggregate on %s with %d stage(s)\n", collection, len(c.Pipeline))
	default:
		fmt.Printf("✅ Valid find on %s\n", collection)
	}
	return nil
}

// classify reads text as a SELECT statement or a command document.
func classify(text string) (*engine.Command, error) {
	trimmed := strings.TrimSpace(text)
	if isSelect(trimmed) {
		return translateSQL(trimmed)
	}
	return engine.ParseCommand(trimmed)
}

func isSelect(s string) bool {
	return len(s) >= 6 && strings.EqualFold(s[:6], "SELECT")
}
