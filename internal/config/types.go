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

// Package config defines the validated, flattened configuration object the
// daemon core consumes. Parsing raw pipeline files (schema, defaults,
// discriminated unions, stage flattening) happens upstream of this package —
// by the time a Config reaches the Supervisor it has already been
// validated: names are unique, stages have been flattened into
// PipelineItems with propagated manual/trigger_on fields, and cycles have
// not yet been checked (that's the Orchestrator's job at load time).
package config

import "time"

// ItemType distinguishes long-running services from one-shot tasks.
type ItemType string

const (
	ItemService ItemType = "service"
	ItemTask    ItemType = "task"
)

// RestartPolicy controls auto-restart behavior for services. Tasks never
// restart regardless of this field.
type RestartPolicy struct {
	Enabled    bool
	DelayMS    int64
	MaxRetries int
}

// StdoutRule is one on_stdout pattern->event rule.
type StdoutRule struct {
	Pattern string
	Emit    string
}

// EventsConfig describes which events a PipelineItem's process lifecycle
// produces.
type EventsConfig struct {
	OnStdout []StdoutRule
	OnStderr bool
	OnCrash  bool
}

// PipelineItem is one child process definition.
type PipelineItem struct {
	Name                 string
	Command               string
	Type                  ItemType
	Cwd                   string
	Env                   map[string]string
	TriggerOn             []string
	Manual                bool
	ContinueOnFailure     bool
	EnableEventTemplates  bool
	Events                EventsConfig
	Restart               *RestartPolicy
	// StageName records which pre-flatten stage this item came from, if
	// any, so the core can answer the stages.map IPC method without
	// re-deriving stage boundaries it was never told about otherwise.
	StageName string
}

// WorkflowFailurePolicy controls what happens to a run when a step fails.
type WorkflowFailurePolicy string

const (
	OnFailureAbort     WorkflowFailurePolicy = "abort"
	OnFailureContinue  WorkflowFailurePolicy = "continue"
	OnFailureSkipRest  WorkflowFailurePolicy = "skip_rest"
)

// StepAction is the discriminant of a WorkflowStep.
type StepAction string

const (
	ActionRun     StepAction = "run"
	ActionStart   StepAction = "start"
	ActionRestart StepAction = "restart"
	ActionStop    StepAction = "stop"
	ActionAwait   StepAction = "await"
	ActionEmit    StepAction = "emit"
)

// Condition is the recursive WorkflowCondition grammar: exactly one of its
// fields is set.
type Condition struct {
	Process string // with Is
	Is      string

	Not *Condition
	All []Condition
	Any []Condition
}

// WorkflowStep is one step of a WorkflowItem. Only the fields relevant to
// Action are meaningful; see each action's fields below.
type WorkflowStep struct {
	Action StepAction

	// run/start/restart/stop
	Process string
	Await   string // event name to await after run/start/restart; "" = action default

	// await
	Event string

	// emit
	Data map[string]any

	TimeoutMS  int64
	If         *Condition
	OnFailure  WorkflowFailurePolicy // "" = inherit workflow default
}

// WorkflowItem is a named, ordered sequence of steps.
type WorkflowItem struct {
	Name      string
	Steps     []WorkflowStep
	TriggerOn []string
	Manual    bool
	OnFailure WorkflowFailurePolicy
	TimeoutMS int64
}

// EffectiveTimeout returns TimeoutMS, defaulting to 600_000ms (10 minutes).
func (w WorkflowItem) EffectiveTimeout() time.Duration {
	if w.TimeoutMS <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(w.TimeoutMS) * time.Millisecond
}

// EffectiveOnFailure returns OnFailure, defaulting to "abort".
func (w WorkflowItem) EffectiveOnFailure() WorkflowFailurePolicy {
	if w.OnFailure == "" {
		return OnFailureAbort
	}
	return w.OnFailure
}

// SafetyConfig configures the supervisor's debounce/rate-limit/circuit
// breaker chain.
type SafetyConfig struct {
	MaxOpsPerMinute int
	DebounceMS      int64
	CircuitBreaker  *CircuitBreakerConfig
}

// CircuitBreakerConfig configures the CircuitBreaker.
type CircuitBreakerConfig struct {
	TimeoutMS                int64
	ErrorThresholdPercentage float64
	VolumeThreshold          int
	ResetTimeoutMS           int64
}

// Config is the fully validated, flattened input the Supervisor consumes.
type Config struct {
	ProjectName string
	GlobalEnv   bool
	Safety      SafetyConfig
	Pipeline    []PipelineItem
	Workflows   []WorkflowItem
}
