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

// Package orchestrator implements the DAG engine: it tracks each pipeline
// item's unmet trigger dependencies, starts an item once every trigger it
// declared has been observed, and performs event-template substitution
// into the started command/env. Grounded on tombee-conductor's
// internal/triggers.Manager (name-keyed dependents/trigger bookkeeping)
// and pkg/workflow/trigger.go's event-trigger vocabulary; the cycle-DFS and
// AND-trigger bookkeeping are new, built to this package's own invariants
// rather than adapted from a single teacher file.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/eventbus"
	"github.com/clierhq/clier/internal/processmanager"
	"github.com/clierhq/clier/internal/template"
	cliererrors "github.com/clierhq/clier/pkg/errors"
)

// Starter is the subset of ProcessManager the Orchestrator drives.
type Starter interface {
	StartProcess(ctx context.Context, cfg config.PipelineItem) error
}

// Orchestrator holds the loaded pipeline graph and tracks pending triggers.
type Orchestrator struct {
	projectName string
	globalEnv   bool
	starter     Starter

	mu         sync.Mutex
	items      map[string]config.PipelineItem
	dependents map[string][]string          // triggerEvent -> dependent item names
	pending    map[string]map[string]struct{} // item name -> remaining trigger_on entries
	started    map[string]bool
	order      []string // load order, for deterministic iteration
}

// New constructs an empty Orchestrator bound to starter.
func New(projectName string, globalEnv bool, starter Starter) *Orchestrator {
	return &Orchestrator{
		projectName: projectName,
		globalEnv:   globalEnv,
		starter:     starter,
		items:       make(map[string]config.PipelineItem),
		dependents:  make(map[string][]string),
		pending:     make(map[string]map[string]struct{}),
		started:     make(map[string]bool),
	}
}

// emitsOf returns every event name item can itself raise: its own pattern
// emits plus the built-in process-lifecycle events PatternRouter derives
// from it.
func emitsOf(item config.PipelineItem) []string {
	emits := []string{
		item.Name + ":success",
		item.Name + ":crashed",
		item.Name + ":failure",
		item.Name + ":stderr",
		"process:exit:" + item.Name,
	}
	for _, rule := range item.Events.OnStdout {
		emits = append(emits, rule.Emit)
	}
	return emits
}

// LoadPipeline replaces the loaded graph, rejecting it if its trigger
// graph contains a cycle.
func (o *Orchestrator) LoadPipeline(items []config.PipelineItem) error {
	itemsByName := make(map[string]config.PipelineItem, len(items))
	emitters := make(map[string][]string) // event name -> item names that can raise it
	order := make([]string, 0, len(items))

	for _, it := range items {
		itemsByName[it.Name] = it
		order = append(order, it.Name)
		for _, e := range emitsOf(it) {
			emitters[e] = append(emitters[e], it.Name)
		}
	}

	dependents := make(map[string][]string)
	for _, it := range items {
		for _, trig := range it.TriggerOn {
			dependents[trig] = append(dependents[trig], it.Name)
		}
	}

	if path := findCycle(items, emitters); path != nil {
		return &cliererrors.CycleError{Path: path}
	}

	pending := make(map[string]map[string]struct{}, len(items))
	for _, it := range items {
		set := make(map[string]struct{}, len(it.TriggerOn))
		for _, trig := range it.TriggerOn {
			set[trig] = struct{}{}
		}
		pending[it.Name] = set
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = itemsByName
	o.dependents = dependents
	o.pending = pending
	o.started = make(map[string]bool)
	o.order = order
	return nil
}

// findCycle runs a DFS over the dependency graph (edge A->B when A waits on
// an event B can emit) and returns the first cycle found as a name path,
// or nil if the graph is acyclic.
func findCycle(items []config.PipelineItem, emitters map[string][]string) []string {
	adj := make(map[string][]string, len(items))
	for _, it := range items {
		seen := make(map[string]struct{})
		for _, trig := range it.TriggerOn {
			for _, b := range emitters[trig] {
				if b == it.Name {
					continue
				}
				if _, dup := seen[b]; dup {
					continue
				}
				seen[b] = struct{}{}
				adj[it.Name] = append(adj[it.Name], b)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(items))
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch color[next] {
			case white:
				if p := visit(next); p != nil {
					return p
				}
			case gray:
				// Found a back edge: build the cycle path from the first
				// occurrence of `next` in the stack.
				for i, s := range stack {
					if s == next {
						cyclePath := append([]string(nil), stack[i:]...)
						return append(cyclePath, next)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		if color[n] == white {
			if p := visit(n); p != nil {
				return p
			}
		}
	}
	return nil
}

// Item returns the loaded definition for name.
func (o *Orchestrator) Item(name string) (config.PipelineItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it, ok := o.items[name]
	return it, ok
}

// GetEntryPoints returns every item with empty trigger_on and manual !=
// true, the set Start launches.
func (o *Orchestrator) GetEntryPoints() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, name := range o.order {
		it := o.items[name]
		if len(it.TriggerOn) == 0 && !it.Manual {
			out = append(out, name)
		}
	}
	return out
}

// GetWaitingProcesses returns a snapshot of every loaded, not-yet-started
// item together with the trigger names it is still waiting on.
func (o *Orchestrator) GetWaitingProcesses() map[string][]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]string)
	for name, set := range o.pending {
		if o.started[name] || len(set) == 0 {
			continue
		}
		waiting := make([]string, 0, len(set))
		for trig := range set {
			waiting = append(waiting, trig)
		}
		sort.Strings(waiting)
		out[name] = waiting
	}
	return out
}

// StagesMap groups loaded item names by their originating stage name, for
// the stages.map IPC method.
func (o *Orchestrator) StagesMap() map[string][]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]string)
	for _, name := range o.order {
		it := o.items[name]
		if it.StageName == "" {
			continue
		}
		out[it.StageName] = append(out[it.StageName], name)
	}
	return out
}

// Start launches every entry point.
func (o *Orchestrator) Start(ctx context.Context) error {
	for _, name := range o.GetEntryPoints() {
		if err := o.triggerStage(ctx, name, nil); err != nil {
			return err
		}
	}
	return nil
}

// TriggerStage starts name directly (no trigger cause), the entry point
// WorkflowEngine's run/start steps use to enter a stage directly,
// bypassing trigger_on.
func (o *Orchestrator) TriggerStage(ctx context.Context, name string) error {
	return o.triggerStage(ctx, name, nil)
}

// HandleEvent updates pending-trigger sets for ev's dependents and starts
// any that become ready.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev eventbus.Event) error {
	o.mu.Lock()
	deps := append([]string(nil), o.dependents[ev.Name]...)
	o.mu.Unlock()

	for _, dep := range deps {
		o.mu.Lock()
		if o.started[dep] {
			o.mu.Unlock()
			continue
		}
		set, ok := o.pending[dep]
		if ok {
			delete(set, ev.Name)
		}
		ready := ok && len(set) == 0
		o.mu.Unlock()

		if ready {
			if err := o.triggerStage(ctx, dep, &ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// triggerStage computes the effective ProcessConfig for name (merging env
// and, when enabled, substituting {{…}} tokens from cause) and starts it.
// started[name] is marked before calling the starter so repeated triggers
// (e.g. a dependent with a satisfied-then-resatisfied AND set) never start
// it twice — stages only ever start once.
func (o *Orchestrator) triggerStage(ctx context.Context, name string, cause *eventbus.Event) error {
	o.mu.Lock()
	item, ok := o.items[name]
	if !ok {
		o.mu.Unlock()
		return &cliererrors.UnknownProcessError{Name: name}
	}
	if o.started[name] {
		o.mu.Unlock()
		return nil
	}
	o.started[name] = true
	o.mu.Unlock()

	effective := o.effectiveConfig(item, cause)
	return o.starter.StartProcess(ctx, effective)
}

func (o *Orchestrator) effectiveConfig(item config.PipelineItem, cause *eventbus.Event) config.PipelineItem {
	out := item
	out.Env = mergedEnv(item, o.globalEnv)

	if item.EnableEventTemplates && cause != nil {
		ctx := buildTemplateContext(item, cause, o.projectName)
		out.Command = template.Substitute(out.Command, ctx)
		substituted := make(map[string]string, len(out.Env))
		for k, v := range out.Env {
			substituted[k] = template.Substitute(v, ctx)
		}
		out.Env = substituted
	}
	return out
}

func mergedEnv(item config.PipelineItem, globalEnv bool) map[string]string {
	merged := make(map[string]string)
	if globalEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				merged[kv[:i]] = kv[i+1:]
			}
		}
	}
	for k, v := range item.Env {
		merged[k] = v
	}
	return merged
}

func buildTemplateContext(item config.PipelineItem, cause *eventbus.Event, project string) template.Context {
	return template.Context{
		EventName:      cause.Name,
		EventSource:    cause.ProcessName,
		EventType:      string(cause.Type),
		EventTimestamp: cause.Timestamp.Format(time.RFC3339Nano),
		EventData:      cause.Data,
		ProcessName:    item.Name,
		ProcessType:    string(item.Type),
		ProjectName:    project,
	}
}

// String is a debugging helper.
func (o *Orchestrator) String() string {
	return fmt.Sprintf("orchestrator(%d items)", len(o.items))
}
