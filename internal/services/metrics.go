package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application.
// All record methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	// Ingest metrics
	IngestItems *prometheus.CounterVec

	// Completion metrics
	CompletionRequests *prometheus.CounterVec
	CompletionLatency  prometheus.Histogram

	// Prompt application metrics
	ApplyRequests     *prometheus.CounterVec
	ApplyCombinations prometheus.Counter
	AnalyticsTasks    *prometheus.CounterVec

	// Research metrics
	ResearchTasks *prometheus.CounterVec

	// Agent metrics
	AgentToolCalls *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// InitMetrics initializes the Prometheus metrics once per process
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			IngestItems: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "datapipe_ingest_items_total",
				Help: "Total number of ingested items by data type and outcome",
			}, []string{"data_type", "outcome"}),

			CompletionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "datapipe_completion_requests_total",
				Help: "Total number of LLM completion calls by outcome",
			}, []string{"outcome"}),

			CompletionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "datapipe_completion_duration_seconds",
				Help:    "LLM completion latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			}),

			ApplyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "datapipe_apply_requests_total",
				Help: "Total number of prompt applications by result kind",
			}, []string{"result"}),

			ApplyCombinations: promauto.NewCounter(prometheus.CounterOpts{
				Name: "datapipe_apply_combinations_total",
				Help: "Total number of combinations processed by prompt applications",
			}),

			AnalyticsTasks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "datapipe_analytics_tasks_total",
				Help: "Remote analytics task registrations by outcome",
			}, []string{"outcome"}),

			ResearchTasks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "datapipe_research_tasks_total",
				Help: "Research task transitions by status",
			}, []string{"status"}),

			AgentToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "datapipe_agent_tool_calls_total",
				Help: "Agent tool invocations by tool and outcome",
			}, []string{"tool", "outcome"}),
		}
	})
	return globalMetrics
}

// GetMetrics returns the global metrics instance, or nil before InitMetrics
func GetMetrics() *Metrics {
	return globalMetrics
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordIngest records one ingested item
func (m *Metrics) RecordIngest(dataType string, err error) {
	if m == nil {
		return
	}
	m.IngestItems.WithLabelValues(dataType, outcome(err)).Inc()
}

// RecordCompletion records one completion call and its latency
func (m *Metrics) RecordCompletion(seconds float64, err error) {
	if m == nil {
		return
	}
	m.CompletionRequests.WithLabelValues(outcome(err)).Inc()
	m.CompletionLatency.Observe(seconds)
}

// RecordApply records a prompt application result
func (m *Metrics) RecordApply(result string, combinations int) {
	if m == nil {
		return
	}
	m.ApplyRequests.WithLabelValues(result).Inc()
	m.ApplyCombinations.Add(float64(combinations))
}

// RecordAnalyticsTask records a remote task registration
func (m *Metrics) RecordAnalyticsTask(err error) {
	if m == nil {
		return
	}
	m.AnalyticsTasks.WithLabelValues(outcome(err)).Inc()
}

// RecordResearch records a research task reaching a status
func (m *Metrics) RecordResearch(status string) {
	if m == nil {
		return
	}
	m.ResearchTasks.WithLabelValues(status).Inc()
}

// RecordToolCall records an agent tool invocation
func (m *Metrics) RecordToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.AgentToolCalls.WithLabelValues(tool, outcome(err)).Inc()
}
