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

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/eventbus"
)

// execStep dispatches one step by action, blocking until it (and, for
// run/start, its default or explicit await) completes, fails, or ctx is
// done.
func (e *Engine) execStep(ctx context.Context, step config.WorkflowStep) error {
	switch step.Action {
	case config.ActionRun, config.ActionStart:
		return e.execRunOrStart(ctx, step)
	case config.ActionRestart:
		if err := e.procs.RestartProcess(ctx, step.Process, false); err != nil {
			return err
		}
		return e.maybeAwait(ctx, step)
	case config.ActionStop:
		timeout := 5 * time.Second
		if step.TimeoutMS > 0 {
			timeout = time.Duration(step.TimeoutMS) * time.Millisecond
		}
		return e.procs.StopProcess(ctx, step.Process, false, timeout)
	case config.ActionAwait:
		return e.awaitEvent(ctx, step.Event, step.TimeoutMS)
	case config.ActionEmit:
		e.bus.Emit(eventbus.Event{
			Name:        step.Event,
			ProcessName: "workflow",
			Type:        eventbus.TypeCustom,
			Data:        step.Data,
			Timestamp:   time.Now(),
		})
		return nil
	default:
		return fmt.Errorf("unknown workflow step action %q", step.Action)
	}
}

// execRunOrStart triggers step.Process via the Orchestrator, then awaits
// either step.Await (if given) or, for task-typed processes, the default
// "<process>:success" completion event — a service-typed process has no
// default await and the step is considered complete once it's been
// triggered.
func (e *Engine) execRunOrStart(ctx context.Context, step config.WorkflowStep) error {
	if err := e.trigger.TriggerStage(ctx, step.Process); err != nil {
		return err
	}
	return e.maybeAwait(ctx, step)
}

func (e *Engine) maybeAwait(ctx context.Context, step config.WorkflowStep) error {
	if step.Await != "" {
		return e.awaitEvent(ctx, step.Await, step.TimeoutMS)
	}
	if item, ok := e.items.Item(step.Process); ok && item.Type == config.ItemTask {
		return e.awaitEvent(ctx, step.Process+":success", step.TimeoutMS)
	}
	return nil
}

// awaitEvent blocks until eventName fires on the bus, ctx is done, or
// timeoutMS elapses (0 = no timeout).
func (e *Engine) awaitEvent(ctx context.Context, eventName string, timeoutMS int64) error {
	received := make(chan struct{}, 1)
	unsubscribe := e.bus.On(eventName, func(eventbus.Event) {
		select {
		case received <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var timeout <-chan time.Time
	if timeoutMS > 0 {
		timer := time.NewTimer(time.Duration(timeoutMS) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-received:
		return nil
	case <-timeout:
		return fmt.Errorf("Timeout waiting for event '%s' after %dms", eventName, timeoutMS)
	case <-ctx.Done():
		return ctx.Err()
	}
}
