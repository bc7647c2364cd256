// Copyright 2026 Clier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics defines the daemon's prometheus vectors, grounded on
// tombee-conductor's internal/controller/metrics (package-level
// promauto vectors plus Record* functions).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clier_process_starts_total",
			Help: "Total process start attempts by name and outcome",
		},
		[]string{"process", "outcome"},
	)

	processRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clier_process_restarts_total",
			Help: "Total auto-restarts by process name",
		},
		[]string{"process"},
	)

	processUptime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clier_process_uptime_seconds",
			Help: "Seconds since the named process last entered running",
		},
		[]string{"process"},
	)

	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clier_events_emitted_total",
			Help: "Total events emitted on the bus by event name",
		},
		[]string{"event"},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clier_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		},
		[]string{"component"},
	)

	workflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clier_workflow_runs_total",
			Help: "Total workflow runs by name and terminal status",
		},
		[]string{"workflow", "status"},
	)

	workflowStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clier_workflow_step_duration_seconds",
			Help:    "Duration of individual workflow steps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workflow", "action"},
	)

	rateLimiterQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clier_rate_limiter_queue_depth",
			Help: "Pending operations queued behind the rate limiter",
		},
		[]string{"component"},
	)

	logWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clier_log_write_errors_total",
			Help: "Total log persistence failures by process name",
		},
		[]string{"process"},
	)

	circuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clier_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions by from/to state",
		},
		[]string{"from", "to"},
	)
)

// RecordProcessStart increments the start counter for name with outcome
// one of "started", "already_running", "spawn_error".
func RecordProcessStart(name, outcome string) {
	processStarts.WithLabelValues(name, outcome).Inc()
}

// RecordProcessRestart increments the restart counter for name.
func RecordProcessRestart(name string) {
	processRestarts.WithLabelValues(name).Inc()
}

// SetProcessUptime records the current uptime of name in seconds, zeroed
// when stopped.
func SetProcessUptime(name string, uptime time.Duration) {
	processUptime.WithLabelValues(name).Set(uptime.Seconds())
}

// RecordEventEmitted increments the emitted-event counter for eventName.
func RecordEventEmitted(eventName string) {
	eventsEmitted.WithLabelValues(eventName).Inc()
}

// SetCircuitState records component's breaker state as a small ordinal.
func SetCircuitState(component, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	default:
		v = 0
	}
	circuitState.WithLabelValues(component).Set(v)
}

// RecordWorkflowRun increments the workflow-run counter for name with
// status one of "completed", "failed", "cancelled".
func RecordWorkflowRun(name, status string) {
	workflowRuns.WithLabelValues(name, status).Inc()
}

// ObserveWorkflowStep records how long one step of workflow took to run.
func ObserveWorkflowStep(workflow, action string, d time.Duration) {
	workflowStepDuration.WithLabelValues(workflow, action).Observe(d.Seconds())
}

// SetRateLimiterQueueDepth records the current queue depth for component.
func SetRateLimiterQueueDepth(component string, depth int) {
	rateLimiterQueueDepth.WithLabelValues(component).Set(float64(depth))
}

// RecordLogWriteError increments the log-persistence-failure counter for
// process.
func RecordLogWriteError(process string) {
	logWriteErrors.WithLabelValues(process).Inc()
}

// RecordCircuitBreakerTransition increments the transition counter for one
// from->to state change.
func RecordCircuitBreakerTransition(from, to string) {
	circuitTransitions.WithLabelValues(from, to).Inc()
}
