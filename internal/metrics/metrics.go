// Package metrics implements the metrics collector (C12) over
// prometheus/client_golang, filling a concern the teacher repo does not
// cover: LM call count/duration, tool call count/success/duration per
// tool, reasoning duration/confidence, loop-detected annotations, and
// validation failures, exposed as an immutable Snapshot.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private Prometheus registry so multiple Collectors
// (e.g. one per test) never collide on global metric registration.
type Collector struct {
	registry *prometheus.Registry

	llmCallTotal      *prometheus.CounterVec
	llmCallDuration   prometheus.Histogram
	toolCallTotal     *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	reasoningDuration prometheus.Histogram
	reasoningConfidence prometheus.Histogram
	loopDetectedTotal prometheus.Counter
	validationFailureTotal prometheus.Counter
}

// New creates a Collector with its metrics registered on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		llmCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omega_llm_calls_total",
			Help: "LM calls by outcome.",
		}, []string{"outcome"}),
		llmCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omega_llm_call_duration_seconds",
			Help:    "LM call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		toolCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omega_tool_calls_total",
			Help: "Tool calls by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omega_tool_call_duration_seconds",
			Help:    "Tool call latency by tool name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		reasoningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omega_reasoning_duration_seconds",
			Help:    "Reasoning engine execution time.",
			Buckets: prometheus.DefBuckets,
		}),
		reasoningConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omega_reasoning_confidence",
			Help:    "Reasoning engine final confidence.",
			Buckets: []float64{0.1, 0.25, 0.5, 0.6, 0.75, 0.9, 1.0},
		}),
		loopDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omega_loop_detected_total",
			Help: "Times the loop detector annotated an observation.",
		}),
		validationFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omega_validation_failures_total",
			Help: "Tool param validation failures.",
		}),
	}
	reg.MustRegister(
		c.llmCallTotal, c.llmCallDuration, c.toolCallTotal, c.toolCallDuration,
		c.reasoningDuration, c.reasoningConfidence, c.loopDetectedTotal, c.validationFailureTotal,
	)
	return c
}

// RecordLlmCall records one LM call's outcome ("success" or "error") and
// its wall-clock duration in seconds.
func (c *Collector) RecordLlmCall(outcome string, seconds float64) {
	c.llmCallTotal.WithLabelValues(outcome).Inc()
	c.llmCallDuration.Observe(seconds)
}

// RecordToolCall records one tool invocation's outcome and duration.
func (c *Collector) RecordToolCall(toolName, outcome string, seconds float64) {
	c.toolCallTotal.WithLabelValues(toolName, outcome).Inc()
	c.toolCallDuration.WithLabelValues(toolName).Observe(seconds)
}

// RecordReasoning records one reasoning engine pass's duration and final
// confidence.
func (c *Collector) RecordReasoning(seconds, confidence float64) {
	c.reasoningDuration.Observe(seconds)
	c.reasoningConfidence.Observe(confidence)
}

// RecordLoopDetected increments the loop-detected-annotation counter.
func (c *Collector) RecordLoopDetected() {
	c.loopDetectedTotal.Inc()
}

// RecordValidationFailure increments the validation-failure counter.
func (c *Collector) RecordValidationFailure() {
	c.validationFailureTotal.Inc()
}

// Registry exposes the underlying Prometheus registry, e.g. for wiring
// promhttp.HandlerFor in cmd/omega.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Snapshot is an immutable point-in-time read of the collected counters,
// gathered from the registry rather than read directly off the live
// metric objects so concurrent Record* calls can never be observed
// mid-update.
type Snapshot struct {
	LlmCallsTotal          map[string]float64
	ToolCallsTotal         map[string]float64 // "tool:outcome" -> count
	LoopDetectedTotal      float64
	ValidationFailureTotal float64
}

// Snapshot gathers the current metric values from the registry.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		LlmCallsTotal:  map[string]float64{},
		ToolCallsTotal: map[string]float64{},
	}

	families, err := c.registry.Gather()
	if err != nil {
		return snap
	}
	for _, fam := range families {
		switch fam.GetName() {
		case "omega_llm_calls_total":
			for _, m := range fam.GetMetric() {
				snap.LlmCallsTotal[labelValue(m, "outcome")] = m.GetCounter().GetValue()
			}
		case "omega_tool_calls_total":
			for _, m := range fam.GetMetric() {
				key := labelValue(m, "tool") + ":" + labelValue(m, "outcome")
				snap.ToolCallsTotal[key] = m.GetCounter().GetValue()
			}
		case "omega_loop_detected_total":
			for _, m := range fam.GetMetric() {
				snap.LoopDetectedTotal = m.GetCounter().GetValue()
			}
		case "omega_validation_failures_total":
			for _, m := range fam.GetMetric() {
				snap.ValidationFailureTotal = m.GetCounter().GetValue()
			}
		}
	}
	return snap
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
