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

// Package supervisor wires every leaf component into the running daemon:
// construct leaves first, connect them through explicit interfaces, route
// emitted events through the debounce/rate-limit/circuit-breaker safety
// chain into the Orchestrator and WorkflowEngine, and tear everything down
// in reverse order on shutdown. Grounded on tombee-conductor's
// internal/daemon (construct-leaves-first wiring) and cmd/conductord's
// signal-driven shutdown sequence.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/configwatch"
	"github.com/clierhq/clier/internal/daemonstate"
	"github.com/clierhq/clier/internal/eventbus"
	"github.com/clierhq/clier/internal/logbuffer"
	"github.com/clierhq/clier/internal/metrics"
	"github.com/clierhq/clier/internal/orchestrator"
	"github.com/clierhq/clier/internal/patternrouter"
	"github.com/clierhq/clier/internal/processmanager"
	"github.com/clierhq/clier/internal/safety"
	"github.com/clierhq/clier/internal/tracing"
	"github.com/clierhq/clier/internal/workflow"
)

// Options configures a Supervisor.
type Options struct {
	Config        config.Config
	ProjectRoot   string
	ConfigPath    string
	TestMode      bool
	Logger        *slog.Logger
	TracerProvider trace.TracerProvider
	ReloadConfig  func(path string) (config.Config, error)
}

// Supervisor owns the full component graph for one daemon run.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	paths  daemonstate.Paths

	logs         *logbuffer.Buffer
	procs        *processmanager.Manager
	bus          *eventbus.Bus
	router       *patternrouter.Router
	orch         *orchestrator.Orchestrator
	workflows    *workflow.Engine
	debouncer    *safety.Debouncer
	rateLimiter  *safety.RateLimiter
	breaker      *safety.CircuitBreaker
	configWatch  *configwatch.Watcher

	startedAt time.Time

	shutdownOnce sync.Once
}

// New constructs every component and wires them together, but does not
// start any process — call Start for that.
func New(opts Options) (*Supervisor, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Supervisor{
		opts:   opts,
		logger: opts.Logger,
		tracer: tracing.Tracer(opts.TracerProvider, "clier"),
		paths:  daemonstate.NewPaths(opts.ProjectRoot),
	}

	s.logs = logbuffer.New(logbuffer.Options{
		Capacity:    1000,
		Persist:     true,
		LogDir:      s.paths.LogDir,
		MaxFileSize: 10 << 20,
		MaxFiles:    5,
	}, func(process string, err error) {
		s.logger.Warn("log write error", slog.String("process", process), slog.Any("error", err))
	})

	s.procs = processmanager.New(opts.Config.GlobalEnv, opts.TestMode, s.tracer)

	s.bus = eventbus.New()
	s.bus.Connect(s.procs)

	router, err := patternrouter.New(s.bus, opts.Config.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("build pattern router: %w", err)
	}
	s.router = router
	s.router.Connect()

	s.orch = orchestrator.New(opts.Config.ProjectName, opts.Config.GlobalEnv, s.procs)
	if err := s.orch.LoadPipeline(opts.Config.Pipeline); err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}

	s.workflows = workflow.New(s.bus, s.orch, s.procs, s.orch, s.logger.With(slog.String("component", "workflow")), s.tracer)
	s.workflows.LoadWorkflows(opts.Config.Workflows)

	debounceMS := opts.Config.Safety.DebounceMS
	if debounceMS <= 0 {
		debounceMS = 50
	}
	s.debouncer = safety.NewDebouncer(time.Duration(debounceMS) * time.Millisecond)

	maxOps := opts.Config.Safety.MaxOpsPerMinute
	if maxOps <= 0 {
		maxOps = 600
	}
	rl, err := safety.NewRateLimiter(maxOps, "orchestrator")
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}
	s.rateLimiter = rl

	var breakerCfg safety.BreakerConfig
	if bc := opts.Config.Safety.CircuitBreaker; bc != nil {
		breakerCfg = safety.BreakerConfig{
			Timeout:                  time.Duration(bc.TimeoutMS) * time.Millisecond,
			ErrorThresholdPercentage: bc.ErrorThresholdPercentage,
			VolumeThreshold:          bc.VolumeThreshold,
			ResetTimeout:             time.Duration(bc.ResetTimeoutMS) * time.Millisecond,
		}
	}
	s.breaker = safety.NewCircuitBreaker("orchestrator", breakerCfg)
	s.breaker.On(safety.EventOpen, func() {
		metrics.SetCircuitState("orchestrator", "open")
		s.bus.Emit(eventbus.Event{Name: "circuit-breaker:triggered", Type: eventbus.TypeCustom, Timestamp: time.Now()})
	})
	s.breaker.On(safety.EventHalfOpen, func() { metrics.SetCircuitState("orchestrator", "half-open") })
	s.breaker.On(safety.EventClose, func() { metrics.SetCircuitState("orchestrator", "closed") })

	if opts.ConfigPath != "" {
		cw, err := configwatch.New(opts.ConfigPath, 300*time.Millisecond, s.logger)
		if err != nil {
			return nil, fmt.Errorf("build config watcher: %w", err)
		}
		s.configWatch = cw
	}

	s.bus.On("stdout", s.recordLog(logbuffer.StreamStdout))
	s.bus.On("stderr", s.recordLog(logbuffer.StreamStderr))
	s.subscribeCoreEvents()

	return s, nil
}

func (s *Supervisor) recordLog(stream logbuffer.Stream) eventbus.Handler {
	return func(ev eventbus.Event) {
		line, _ := ev.Data.(string)
		s.logs.Add(ev.ProcessName, stream, line)
	}
}

// subscribeCoreEvents routes every event named by allEventNames through the safety
// chain into the Orchestrator and, in parallel, straight into the
// WorkflowEngine (workflows react to raw events, not the
// debounced/rate-limited/circuit-broken stream feeding stage triggers).
func (s *Supervisor) subscribeCoreEvents() {
	handle := func(ev eventbus.Event) {
		metrics.RecordEventEmitted(ev.Name)

		s.debouncer.Debounce(ev.ProcessName+":"+ev.Name, func() {
			protected := safety.Protect(s.breaker, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.orch.HandleEvent(ctx, ev)
			})
			if _, err := safety.Schedule(s.rateLimiter, func() (struct{}, error) {
				return protected(context.Background())
			}); err != nil {
				s.logger.Warn("event handling failed", slog.String("event", ev.Name), slog.Any("error", err))
			}
		})

		go s.workflows.HandleEvent(context.Background(), ev)
	}

	for _, name := range allEventNames(s.opts.Config) {
		s.bus.On(name, handle)
	}
}

// allEventNames derives every distinct event name the loaded config can
// produce or wait on (pipeline and workflow trigger_on entries), so
// subscribeCoreEvents only wires handlers for events that actually exist
// rather than guessing at a fixed set.
func allEventNames(cfg config.Config) []string {
	seen := make(map[string]struct{})
	add := func(n string) { seen[n] = struct{}{} }
	for _, item := range cfg.Pipeline {
		add(item.Name + ":success")
		add(item.Name + ":crashed")
		add(item.Name + ":failure")
		add(item.Name + ":stderr")
		add("process:exit:" + item.Name)
		for _, rule := range item.Events.OnStdout {
			add(rule.Emit)
		}
		for _, t := range item.TriggerOn {
			add(t)
		}
	}
	for _, w := range cfg.Workflows {
		for _, t := range w.TriggerOn {
			add(t)
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// Start launches every pipeline entry point and begins watching the
// config file, if configured.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startedAt = time.Now()
	if s.configWatch != nil {
		s.configWatch.Start(ctx)
		go s.watchConfig(ctx)
	}
	return s.orch.Start(ctx)
}

func (s *Supervisor) watchConfig(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.configWatch.Changes():
			if !ok {
				return
			}
			if s.opts.ReloadConfig == nil {
				continue
			}
			if _, err := s.opts.ReloadConfig(s.opts.ConfigPath); err != nil {
				s.logger.Error("config reload failed", slog.Any("error", err))
				s.bus.Emit(eventbus.Event{Name: "config:reload_failed", Type: eventbus.TypeCustom, Timestamp: time.Now()})
				continue
			}
			s.bus.Emit(eventbus.Event{Name: "config:reloaded", Type: eventbus.TypeCustom, Timestamp: time.Now()})
		}
	}
}

// Shutdown stops every managed process within deadline and disarms every
// owned timer, idempotently.
func (s *Supervisor) Shutdown(ctx context.Context, deadline time.Duration) processmanager.ShutdownResult {
	var result processmanager.ShutdownResult
	s.shutdownOnce.Do(func() {
		if s.configWatch != nil {
			_ = s.configWatch.Stop()
		}
		s.debouncer.CancelAll()
		s.rateLimiter.Stop(true)
		s.breaker.Shutdown()
		result = s.procs.Shutdown(ctx, deadline, nil)
		s.logs.Flush()
		s.bus.Disconnect()
	})
	return result
}

// ProcessManager exposes the underlying registry for IPC handlers.
func (s *Supervisor) ProcessManager() *processmanager.Manager { return s.procs }

// LogBuffer exposes the underlying log store for IPC handlers.
func (s *Supervisor) LogBuffer() *logbuffer.Buffer { return s.logs }

// Orchestrator exposes the underlying DAG engine for IPC handlers.
func (s *Supervisor) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Workflows exposes the underlying workflow engine for IPC handlers.
func (s *Supervisor) Workflows() *workflow.Engine { return s.workflows }

// StartedAt reports when Start was called, for daemon.status's uptime_ms.
func (s *Supervisor) StartedAt() time.Time { return s.startedAt }
