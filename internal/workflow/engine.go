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

// Package workflow implements the WorkflowEngine: a per-workflow
// sequential step runner with await/emit/conditions/timeouts/cancel,
// grounded on tombee-conductor's pkg/workflow.Executor (StepStatus
// vocabulary, fluent WithX construction, handleError-style failure-policy
// dispatch, evaluateCondition shape), generalized from its
// LLM/tool/subworkflow step kinds down to a closed
// run/start/restart/stop/await/emit action set.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/eventbus"
	"github.com/clierhq/clier/internal/metrics"
	"github.com/clierhq/clier/internal/process"
	"github.com/clierhq/clier/internal/tracing"
	cliererrors "github.com/clierhq/clier/pkg/errors"
)

// RunStatus is the terminal or in-flight status of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StepStatus is the status of one step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of one step in a Run.
type StepState struct {
	Status      StepStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Run is the runtime record of one workflow execution.
type Run struct {
	Name        string
	Status      RunStatus
	CurrentStep int
	Steps       []StepState
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	TriggeredBy string

	cancel context.CancelFunc
	done   chan struct{}
}

// Trigger starts a pipeline item directly, the seam run/start steps use.
type Trigger interface {
	TriggerStage(ctx context.Context, name string) error
}

// ProcessController is the subset of ProcessManager the engine drives for
// stop/restart steps and condition evaluation.
type ProcessController interface {
	StopProcess(ctx context.Context, name string, force bool, timeout time.Duration) error
	RestartProcess(ctx context.Context, name string, force bool) error
	ProcessState(name string) process.Status
}

// ItemLookup answers "what pipeline item is this" for the default-await
// decision on run/start steps (auto-await <process>:success for tasks).
type ItemLookup interface {
	Item(name string) (config.PipelineItem, bool)
}

// Engine holds loaded workflow definitions and at most one active run per
// name.
type Engine struct {
	bus     *eventbus.Bus
	trigger Trigger
	procs   ProcessController
	items   ItemLookup
	logger  *slog.Logger
	tracer  trace.Tracer

	mu       sync.Mutex
	defs     map[string]config.WorkflowItem
	received map[string]map[string]struct{}
	runs     map[string]*Run
}

// New constructs an Engine with no workflows loaded. tracer may be nil, in
// which case spans are no-ops.
func New(bus *eventbus.Bus, trigger Trigger, procs ProcessController, items ItemLookup, logger *slog.Logger, tracer trace.Tracer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		bus:      bus,
		trigger:  trigger,
		procs:    procs,
		items:    items,
		logger:   logger,
		tracer:   tracer,
		defs:     make(map[string]config.WorkflowItem),
		received: make(map[string]map[string]struct{}),
		runs:     make(map[string]*Run),
	}
}

// ProcessState implements StatusSource by delegating to the configured
// ProcessController.
func (e *Engine) ProcessState(name string) process.Status {
	return e.procs.ProcessState(name)
}

// LoadWorkflows replaces every loaded definition. Each non-manual workflow
// with a non-empty trigger_on gets a fresh received-trigger set.
func (e *Engine) LoadWorkflows(items []config.WorkflowItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs = make(map[string]config.WorkflowItem, len(items))
	e.received = make(map[string]map[string]struct{})
	for _, w := range items {
		e.defs[w.Name] = w
		if !w.Manual && len(w.TriggerOn) > 0 {
			e.received[w.Name] = make(map[string]struct{})
		}
	}
}

// HandleEvent advances every workflow's received-trigger set and fires any
// that become ready (AND semantics over trigger_on), provided it is not
// already running.
func (e *Engine) HandleEvent(ctx context.Context, ev eventbus.Event) {
	e.mu.Lock()
	var ready []string
	for name, received := range e.received {
		w := e.defs[name]
		found := false
		for _, t := range w.TriggerOn {
			if t == ev.Name {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		received[ev.Name] = struct{}{}
		if len(received) < len(w.TriggerOn) {
			continue
		}
		if _, running := e.runs[name]; running {
			continue
		}
		e.received[name] = make(map[string]struct{})
		ready = append(ready, name)
	}
	e.mu.Unlock()

	for _, name := range ready {
		name := name
		go func() {
			_ = e.TriggerWorkflow(context.Background(), name, ev.Name)
		}()
	}
}

// Status returns a snapshot of one workflow's active run, if any.
func (e *Engine) Status(name string) (Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[name]
	if !ok {
		return Run{}, false
	}
	return *r, true
}

// ListRuns returns a snapshot of every active run.
func (e *Engine) ListRuns() []Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Run, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, *r)
	}
	return out
}

// CancelWorkflow cancels name's active run, if any. The in-flight await
// rejects immediately; remaining steps are marked skipped; the run's
// terminal event is "<name>:cancelled".
func (e *Engine) CancelWorkflow(name string) error {
	e.mu.Lock()
	r, ok := e.runs[name]
	e.mu.Unlock()
	if !ok {
		return &cliererrors.UnknownWorkflowError{Name: name}
	}
	r.cancel()
	return nil
}

// TriggerWorkflow starts a run of name. It rejects unknown workflows and
// workflows with an already-active run.
func (e *Engine) TriggerWorkflow(ctx context.Context, name string, triggeredBy string) error {
	e.mu.Lock()
	def, ok := e.defs[name]
	if !ok {
		e.mu.Unlock()
		return &cliererrors.UnknownWorkflowError{Name: name}
	}
	if _, running := e.runs[name]; running {
		e.mu.Unlock()
		return &cliererrors.AlreadyRunningError{Kind: "workflow", Name: name}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		Name:        name,
		Status:      RunStatusRunning,
		Steps:       make([]StepState, len(def.Steps)),
		StartedAt:   time.Now(),
		TriggeredBy: triggeredBy,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for i := range run.Steps {
		run.Steps[i].Status = StepPending
	}
	e.runs[name] = run
	e.mu.Unlock()

	e.emitLifecycle(name + ":started")

	go e.runWorkflow(runCtx, def, run)

	<-run.done
	if run.Status == RunStatusFailed {
		return fmt.Errorf("workflow %q failed: %s", name, run.Error)
	}
	return nil
}

func (e *Engine) runWorkflow(ctx context.Context, def config.WorkflowItem, run *Run) {
	defer close(run.done)
	defer func() {
		e.mu.Lock()
		delete(e.runs, def.Name)
		e.mu.Unlock()
	}()

	ctx, span := tracing.StartWorkflowRun(ctx, e.tracer, def.Name, run.TriggeredBy)
	defer span.End()

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, def.EffectiveTimeout())
	defer cancelTimeout()

	outcome := e.runSteps(timeoutCtx, def, run)

	completedAt := time.Now()
	run.CompletedAt = &completedAt

	switch outcome {
	case outcomeCancelled:
		run.Status = RunStatusCancelled
		metrics.RecordWorkflowRun(def.Name, "cancelled")
		e.emitLifecycle(def.Name + ":cancelled")
	case outcomeTimedOut:
		run.Status = RunStatusFailed
		run.Error = "Workflow timed out"
		span.RecordError(fmt.Errorf("workflow %q timed out", def.Name))
		metrics.RecordWorkflowRun(def.Name, "failed")
		e.emitLifecycle(def.Name + ":failed")
	case outcomeFailed:
		run.Status = RunStatusFailed
		span.RecordError(fmt.Errorf("workflow %q failed: %s", def.Name, run.Error))
		metrics.RecordWorkflowRun(def.Name, "failed")
		e.emitLifecycle(def.Name + ":failed")
	default:
		run.Status = RunStatusCompleted
		metrics.RecordWorkflowRun(def.Name, "completed")
		e.emitLifecycle(def.Name + ":completed")
	}
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeCancelled
	outcomeTimedOut
)

func (e *Engine) runSteps(ctx context.Context, def config.WorkflowItem, run *Run) outcome {
	abortedByFailure := false

	for i := range def.Steps {
		if ctx.Err() != nil {
			e.skipRemaining(run, i)
			if run.cancelledVia(ctx) {
				return outcomeCancelled
			}
			return outcomeTimedOut
		}
		if abortedByFailure {
			run.Steps[i].Status = StepSkipped
			continue
		}

		step := def.Steps[i]
		run.CurrentStep = i

		if !evaluate(step.If, statusAdapter{e}) {
			run.Steps[i].Status = StepSkipped
			continue
		}

		started := time.Now()
		run.Steps[i].Status = StepRunning
		run.Steps[i].StartedAt = &started

		stepCtx, stepSpan := tracing.StartStep(ctx, e.tracer, def.Name, i, string(step.Action))
		err := e.execStep(stepCtx, step)

		completed := time.Now()
		run.Steps[i].CompletedAt = &completed
		metrics.ObserveWorkflowStep(def.Name, string(step.Action), completed.Sub(started))
		if err != nil {
			stepSpan.RecordError(err)
		}
		stepSpan.End()

		if ctx.Err() != nil {
			run.Steps[i].Status = StepSkipped
			e.skipRemaining(run, i+1)
			if run.cancelledVia(ctx) {
				return outcomeCancelled
			}
			return outcomeTimedOut
		}

		if err != nil {
			run.Steps[i].Status = StepFailed
			run.Steps[i].Error = err.Error()

			policy := step.OnFailure
			if policy == "" {
				policy = def.EffectiveOnFailure()
			}
			switch policy {
			case config.OnFailureContinue:
				continue
			case config.OnFailureSkipRest:
				e.skipRemaining(run, i+1)
				return outcomeCompleted
			default: // abort
				run.Error = err.Error()
				abortedByFailure = true
				e.skipRemaining(run, i+1)
				return outcomeFailed
			}
		}

		run.Steps[i].Status = StepCompleted
	}
	return outcomeCompleted
}

func (r *Run) cancelledVia(ctx context.Context) bool {
	return ctx.Err() == context.Canceled
}

func (e *Engine) skipRemaining(run *Run, from int) {
	for i := from; i < len(run.Steps); i++ {
		if run.Steps[i].Status == StepPending {
			run.Steps[i].Status = StepSkipped
		}
	}
}

func (e *Engine) emitLifecycle(name string) {
	e.bus.Emit(eventbus.Event{Name: name, Type: eventbus.TypeCustom, Timestamp: time.Now()})
}

type statusAdapter struct{ e *Engine }

func (a statusAdapter) ProcessState(name string) process.Status {
	return a.e.ProcessState(name)
}
