package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts dispatched commands by kind (find, aggregate, command) and status.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsql_commands_total",
			Help: "Total number of commands submitted to the document store",
		},
		[]string{"kind", "status"},
	)
	// CommandDuration is the latency of the store round-trip that opens a result.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsql_command_duration_seconds",
			Help:    "Command submission latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	// RowsTotal counts documents delivered through streaming cursors.
	RowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsql_rows_total",
			Help: "Total number of rows read from cursors",
		},
	)
	// ColumnsRegistered counts columns discovered by cursor metadata.
	ColumnsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsql_columns_registered_total",
			Help: "Total number of columns discovered from result documents",
		},
	)
)

// Status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ObserveCommand records one command submission.
func ObserveCommand(kind string, seconds float64, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	CommandsTotal.WithLabelValues(kind, status).Inc()
	CommandDuration.WithLabelValues(kind).Observe(seconds)
}
