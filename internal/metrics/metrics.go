// Package metrics holds the Prometheus instruments of the decision engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Batch ──────────────────────────────────────────────────────────────────

// Decisions counts produced decisions by value and origin (evaluated, cached, failed).
var Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "harrier",
	Subsystem: "batch",
	Name:      "decisions_total",
	Help:      "Total withdrawal decisions by value and origin.",
}, []string{"decision", "origin"})

// EvaluationDuration observes the end-to-end time of one withdrawal evaluation.
var EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "harrier",
	Subsystem: "batch",
	Name:      "evaluation_duration_seconds",
	Help:      "Time to gather evidence, decide and persist one withdrawal.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
})

// BatchSize observes the number of withdrawals per batch.
var BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "harrier",
	Subsystem: "batch",
	Name:      "size",
	Help:      "Withdrawals per evaluated batch.",
	Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
})

// FetchRetries counts evidence fetch retries by error kind.
var FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "harrier",
	Subsystem: "vendor",
	Name:      "fetch_retries_total",
	Help:      "Evidence fetch retries by error kind.",
}, []string{"kind"})

// Payouts counts live payout submissions by outcome.
var Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "harrier",
	Subsystem: "vendor",
	Name:      "payouts_total",
	Help:      "Payout submissions by outcome (submitted, failed).",
}, []string{"outcome"})

// ─── Rules ──────────────────────────────────────────────────────────────────

// RuleFailures counts failed rule verdicts by rule key and criticality.
var RuleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "harrier",
	Subsystem: "rules",
	Name:      "failures_total",
	Help:      "Failed rule verdicts by rule key.",
}, []string{"rule", "critical"})

// ConfigWarnings counts unknown or misconfigured rules seen during evaluation.
var ConfigWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "harrier",
	Subsystem: "rules",
	Name:      "config_warnings_total",
	Help:      "Rule configuration warnings by rule key.",
}, []string{"rule"})

// ─── Risk ───────────────────────────────────────────────────────────────────

// RiskFindings counts risky evaluations by severity.
var RiskFindings = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "harrier",
	Subsystem: "risk",
	Name:      "findings_total",
	Help:      "Spin-hoarding findings by severity.",
}, []string{"severity"})
