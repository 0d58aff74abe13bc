// Package metrics exposes the engine's Prometheus counters and gauges,
// trimmed to the components this engine actually has: the tool-call
// dispatcher, the scheduler's run loop, and the artifact preview runner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToolExecutions counts builtin/transport tool calls by tool name and
	// outcome ("success"|"error").
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_tool_executions_total",
			Help: "Total number of tool calls dispatched, by tool name and outcome",
		},
		[]string{"tool_name", "status"},
	)

	// ToolExecutionDuration measures dispatch-to-result latency in seconds.
	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_tool_execution_duration_seconds",
			Help:    "Duration of tool call execution in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"tool_name"},
	)

	// ScheduledRunAttempts counts scheduler tick executions by outcome
	// ("success"|"failed").
	ScheduledRunAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_scheduled_run_attempts_total",
			Help: "Total number of scheduled task runs, by outcome",
		},
		[]string{"status"},
	)

	// ArtifactServersActive gauges the number of live preview dev servers.
	ArtifactServersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_artifact_servers_active",
			Help: "Current number of running artifact preview dev servers",
		},
	)

	// LLMRequestDuration measures provider completion latency in seconds.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_llm_request_duration_seconds",
			Help:    "Duration of LLM provider completion requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "status"},
	)
)
