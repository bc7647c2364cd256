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

// Package processmanager aggregates a collection of ManagedProcess
// instances, re-emitting every child's events with its name attached and
// providing ordered shutdown, grounded on tombee-conductor's
// internal/controller/runner.Runner (a name-keyed registry guarded by a
// sync.RWMutex, with an aggregate shutdown result type).
package processmanager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/process"
)

// RawEvent is a process.Event with the originating process name attached,
// the shape the EventBus normalizes from.
type RawEvent struct {
	Name string
	process.Event
}

// Listener receives every RawEvent in the order ProcessManager observed it.
type Listener func(RawEvent)

// Manager is the name-keyed registry of ManagedProcess instances.
type Manager struct {
	globalEnv bool
	testMode  bool
	tracer    trace.Tracer

	mu        sync.RWMutex
	processes map[string]*process.Process
	cfgs      map[string]config.PipelineItem

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs an empty Manager. tracer may be nil, in which case spans
// are no-ops.
func New(globalEnv, testMode bool, tracer trace.Tracer) *Manager {
	return &Manager{
		globalEnv: globalEnv,
		testMode:  testMode,
		tracer:    tracer,
		processes: make(map[string]*process.Process),
		cfgs:      make(map[string]config.PipelineItem),
	}
}

// Subscribe registers a listener invoked synchronously, in registration
// order, for every event raised by any managed process.
func (m *Manager) Subscribe(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) dispatch(name string, ev process.Event) {
	raw := RawEvent{Name: name, Event: ev}
	m.listenersMu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.listenersMu.Unlock()
	for _, l := range listeners {
		l(raw)
	}
}

// StartProcess launches cfg under name. It rejects a request for a name
// that is currently running; a stopped entry under the same name is
// replaced.
func (m *Manager) StartProcess(ctx context.Context, cfg config.PipelineItem) error {
	m.mu.Lock()
	if existing, ok := m.processes[cfg.Name]; ok && existing.IsRunning() {
		m.mu.Unlock()
		return fmt.Errorf("process %q is already running", cfg.Name)
	}
	proc := process.New(cfg.Name, cfg, func(ev process.Event) { m.dispatch(cfg.Name, ev) }, m.testMode, m.tracer)
	m.processes[cfg.Name] = proc
	m.cfgs[cfg.Name] = cfg
	m.mu.Unlock()

	return proc.Start(ctx, m.globalEnv)
}

func (m *Manager) get(name string) (*process.Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processes[name]
	return p, ok
}

// StopProcess stops the named process. timeout<=0 uses the process
// default (5s).
func (m *Manager) StopProcess(ctx context.Context, name string, force bool, timeout time.Duration) error {
	p, ok := m.get(name)
	if !ok {
		return fmt.Errorf("process %q not found", name)
	}
	return p.Stop(ctx, force, timeout)
}

// RestartProcess stops then starts the named process.
func (m *Manager) RestartProcess(ctx context.Context, name string, force bool) error {
	p, ok := m.get(name)
	if !ok {
		return fmt.Errorf("process %q not found", name)
	}
	return p.Restart(ctx, force, m.globalEnv)
}

// DeleteProcess removes name from the registry, stopping it first if
// still running.
func (m *Manager) DeleteProcess(ctx context.Context, name string) error {
	p, ok := m.get(name)
	if !ok {
		return fmt.Errorf("process %q not found", name)
	}
	if p.IsRunning() {
		if err := p.Stop(ctx, false, 5*time.Second); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.processes, name)
	delete(m.cfgs, name)
	m.mu.Unlock()
	return nil
}

// Status is the point-in-time snapshot returned by GetStatus/ListProcesses.
type Status struct {
	Name      string
	Type      config.ItemType
	Status    process.Status
	Pid       int
	Restarts  int
	StageName string
}

// GetStatus returns a snapshot for one process.
func (m *Manager) GetStatus(name string) (Status, bool) {
	p, ok := m.get(name)
	if !ok {
		return Status{}, false
	}
	m.mu.RLock()
	cfg := m.cfgs[name]
	m.mu.RUnlock()
	return Status{
		Name:      name,
		Type:      cfg.Type,
		Status:    p.Status(),
		Pid:       p.Pid(),
		Restarts:  p.Restarts(),
		StageName: cfg.StageName,
	}, true
}

// ListProcesses returns a snapshot of every registered process, sorted by
// name for deterministic output.
func (m *Manager) ListProcesses() []Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.processes))
	for n := range m.processes {
		names = append(names, n)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	out := make([]Status, 0, len(names))
	for _, n := range names {
		if s, ok := m.GetStatus(n); ok {
			out = append(out, s)
		}
	}
	return out
}

// IsRunning reports whether name exists and is currently running.
func (m *Manager) IsRunning(name string) bool {
	p, ok := m.get(name)
	return ok && p.IsRunning()
}

// ProcessState returns name's current status for condition evaluation,
// treating an unknown process as stopped.
func (m *Manager) ProcessState(name string) process.Status {
	p, ok := m.get(name)
	if !ok {
		return process.StatusStopped
	}
	return p.Status()
}

// ShutdownResult is the aggregate outcome of Shutdown.
type ShutdownResult struct {
	Stopped []string
	Failed  []string
}

// Shutdown stops every registered process within the deadline. If
// stopOrder is given, those names are stopped sequentially first (in the
// given order); the remainder stop in parallel. Individual failures are
// recorded, never raised, so one stubborn process can't block the rest.
func (m *Manager) Shutdown(ctx context.Context, deadline time.Duration, stopOrder []string) ShutdownResult {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	m.mu.RLock()
	remaining := make(map[string]struct{}, len(m.processes))
	for n := range m.processes {
		remaining[n] = struct{}{}
	}
	m.mu.RUnlock()

	result := ShutdownResult{}

	for _, name := range stopOrder {
		if _, ok := remaining[name]; !ok {
			continue
		}
		delete(remaining, name)
		if err := m.StopProcess(ctx, name, false, 5*time.Second); err != nil {
			result.Failed = append(result.Failed, name)
		} else {
			result.Stopped = append(result.Stopped, name)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name := range remaining {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.StopProcess(ctx, name, false, 5*time.Second)
			mu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, name)
			} else {
				result.Stopped = append(result.Stopped, name)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return result
}
