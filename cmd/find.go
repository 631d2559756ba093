package cmd

import (
	"fmt"
	"os"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/parser"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	findFilter     string
	findSort       string
	findProjection string
	findLimit      int64
	findSkip       int64
	findBatchSize  int32
)

var findCmd = &cobra.Command{
	Use:   "find <collection>",
	Short: "Build and run a find command",
	Long: `Build a find command from flags and run it against a collection.
Examples:
  docsql find people --filter '{"age": {"$gte": 18}}'
  docsql find people --sort '{"age": -1}' --limit 5
  docsql find people --projection '{"name": 1, "_id": 0}' --skip 10`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVarP(&findFilter, "filter", "f", "{}", "Filter document")
	findCmd.Flags().StringVarP(&findSort, "sort", "s", "", "Sort document, e.g. {\"age\": -1}")
	findCmd.Flags().StringVarP(&findProjection, "projection", "p", "", "Projection document")
	findCmd.Flags().Int64VarP(&findLimit, "limit", "l", 0, "Maximum number of rows")
	findCmd.Flags().Int64Var(&findSkip, "skip", 0, "Number of documents to skip")
	findCmd.Flags().Int32Var(&findBatchSize, "batch-size", 0, "Documents per server round-trip")
}

func runFind(cmd *cobra.Command, args []string) error {
	doc, err := findDocument(cmd, args[0])
	if err != nil {
		return err
	}
	c, err := engine.CommandFromDocument(doc)
	if err != nil {
		return err
	}
	if QueryExplain {
		return explain(os.Stdout, c)
	}
	return withConn(cmd.Context(), func(conn *engine.Conn) error {
		return runCommand(cmd.Context(), os.Stdout, conn, c)
	})
}

// findDocument assembles the command document from the flags that were set.
func findDocument(cmd *cobra.Command, collection string) (bson.D, error) {
	doc := bson.D{{Key: engine.KeyFind, Value: collection}}

	docFlags := []struct {
		key, flag, value string
	}{
		{engine.KeyFilter, "filter", findFilter},
		{engine.KeySort, "sort", findSort},
		{engine.KeyProjection, "projection", findProjection},
	}
	for _, f := range docFlags {
		if f.value == "" {
			continue
		}
		v, err := parser.Decode([]byte(f.value))
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", f.flag, err)
		}
		doc = append(doc, bson.E{Key: f.key, Value: v})
	}

	if cmd.Flags().Changed("skip") {
		doc = append(doc, bson.E{Key: engine.KeySkip, Value: findSkip})
	}
	if cmd.Flags().Changed("limit") {
		doc = append(doc, bson.E{Key: engine.KeyLimit, Value: findLimit})
	}
	if cmd.Flags().Changed("batch-size") {
		doc = append(doc, bson.E{Key: engine.KeyBatchSize, Value: findBatchSize})
	}
	return doc, nil
}
