package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/bisegni/docsql/pkg/config"
	"github.com/bisegni/docsql/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	QueryExplain    bool
	InteractiveMode bool

	// cfg is resolved once flags are parsed, before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docsql [command-document|file|-]",
	Short: "Query a document store as tables",
	Long: `docsql runs command documents against a MongoDB database or a directory
of JSON/JSONL collections and prints the results as rows.
If no command is provided, it defaults to query.

A command document is either a find:
  {"find": "people", "filter": {"age": {"$gt": 30}}, "sort": {"name": 1}}
or an aggregate:
  {"find": "sales", "aggreg": [{"$group": {"_id": "$item", "n": {"$sum": 1}}}]}

Supports:
  - Inline documents: docsql '{"find": "people", "filter": {}}'
  - Files: docsql query.json
  - Stdin: echo '{"filter": {}}' | docsql --collection people

Examples:
  docsql --uri mongodb://localhost:27017/shop '{"find": "orders"}'
  docsql --uri file:///var/data sql "SELECT name FROM people WHERE age > 30"
  docsql --uri file:///var/data -i`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if InteractiveMode {
			return RunInteractive(cmd.Context())
		}

		// Check if stdin has data
		stat, _ := os.Stdin.Stat()
		hasStdin := (stat.Mode() & os.ModeCharDevice) == 0

		source := ""
		switch {
		case len(args) == 1:
			source = args[0]
		case hasStdin:
			source = "-"
		default:
			return cmd.Help()
		}
		return runQuery(cmd.Context(), source)
	},
}

// setup resolves the configuration, then starts logging and the metrics
// listener.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	cfg = c
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener stopped", "addr", addr, "error", err)
	}
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (yaml, json or toml)")
	flags.String("uri", "", "Store URI: mongodb://host/db or file:///dir (default mongodb://localhost:27017)")
	flags.String("database", "", "Database name, overrides the URI path")
	flags.String("collection", "", "Default collection for commands without \"find\"")
	flags.StringP("output", "o", "", "Output format: table, json or jsonl (default table)")
	flags.Bool("pretty", false, "Pretty print JSON output")
	flags.Duration("timeout", 0, "Per-command timeout (default 30s)")
	flags.BoolVar(&QueryExplain, "explain", false, "Print the command and its plan instead of running it")
	flags.BoolVarP(&InteractiveMode, "interactive", "i", false, "Interactive REPL mode")
	flags.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (default WARN)")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(statsCmd)
}

// commandContext bounds one command by the configured timeout.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if cfg == nil || cfg.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, cfg.Timeout)
}
