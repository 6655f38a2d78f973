// Package metrics holds the prometheus collectors of the command pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker metrics
var (
	// QueueDepth is the number of commands queued or executing per worker
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "msync_worker_queue_depth",
			Help: "Commands queued or executing on a collection worker",
		},
		[]string{"worker"},
	)

	// CommandsTotal counts executed commands by kind and outcome
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msync_commands_total",
			Help: "Commands executed by collection workers",
		},
		[]string{"kind", "status"},
	)

	// CommandDuration observes time spent executing and committing a command
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msync_command_duration_seconds",
			Help:    "Time to execute and commit a command",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// FilesAdded counts files that fully committed through AddFiles
	FilesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msync_files_added_total",
		Help: "Files committed with a catalog entry",
	})
)

// Replication metrics
var (
	OplogPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msync_oplog_published_total",
		Help: "Local oplog entries published to peers",
	})

	// OplogReceived counts remote messages by outcome
	OplogReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msync_oplog_received_total",
			Help: "Oplog envelopes received from peers",
		},
		[]string{"status"},
	)
)

// Command outcomes
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Received envelope outcomes
const (
	ReceivedQueued    = "queued"
	ReceivedIgnored   = "ignored"
	ReceivedMalformed = "malformed"
	ReceivedLeaving   = "leaving"
)
