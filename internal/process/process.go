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

//go:build unix

// Package process implements ManagedProcess: one spawned child with full
// stdio capture, kill-tree shutdown, and restart policy, grounded on the
// command-execution style of tombee-conductor's internal/action/shell
// connector (exec.Cmd construction, env merge, working directory
// resolution) generalized from a one-shot Execute into a long-lived
// supervised child.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/metrics"
	"github.com/clierhq/clier/internal/tracing"
	cliererrors "github.com/clierhq/clier/pkg/errors"
)

// Status is the lifecycle state of a ManagedProcess.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusCrashed  Status = "crashed"
)

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	EventStart   EventKind = "start"
	EventStdout  EventKind = "stdout"
	EventStderr  EventKind = "stderr"
	EventExit    EventKind = "exit"
	EventRestart EventKind = "restart"
	EventError   EventKind = "error"
)

// Event is one lifecycle signal raised by a ManagedProcess. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind      EventKind
	Pid       int
	Line      string
	Code      *int
	Signal    string
	Stdout    []string
	Stderr    []string
	Attempt   int
	Message   string
	Timestamp time.Time
}

// Emitter receives every Event a ManagedProcess raises, in the order
// observed: start < every stdout/stderr chunk < exit.
type Emitter func(Event)

// stabilityWindow is the duration a restarted service must stay running
// before its restart counter resets to zero; see DESIGN.md Open Question #1.
const stabilityWindow = 10 * time.Second

// ringCapacity bounds the small recent-lines ring kept for quick status
// inspection. It is independent of the (unbounded, per-run) accumulation
// buffers used to satisfy the exit-completeness invariant, and independent
// of LogBuffer's own ring, which is the durable record.
const ringCapacity = 50

// Process is one supervised child process.
type Process struct {
	Name    string
	cfg     config.PipelineItem
	emit    Emitter
	testMode bool
	tracer  trace.Tracer

	mu         sync.Mutex
	status     Status
	pid        int
	startedAt  *time.Time
	restarts   int
	cmd        *exec.Cmd
	stabilityT *time.Timer
	exitCh     chan struct{}

	stdoutAccum []string
	stderrAccum []string
	stdoutRing  []string
	stderrRing  []string

	autoRestartSeq int // guards stale delayed-restart goroutines after an explicit Stop
}

// New constructs a Process in the idle state. testMode disables detached
// (session-leader) spawning so test harnesses don't leak orphaned process
// groups across runs. tracer may be nil, in which case spans are no-ops.
func New(name string, cfg config.PipelineItem, emit Emitter, testMode bool, tracer trace.Tracer) *Process {
	return &Process{
		Name:     name,
		cfg:      cfg,
		emit:     emit,
		testMode: testMode,
		tracer:   tracer,
		status:   StatusIdle,
	}
}

// Status returns the current lifecycle status.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// IsRunning reports whether the OS child exists and has not exited.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == StatusRunning || p.status == StatusStarting
}

// Pid returns the last known process id, or 0 if never started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Restarts returns the current restart counter.
func (p *Process) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func (p *Process) raise(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if p.emit != nil {
		p.emit(ev)
	}
}

// Start spawns the command. It returns once the child has been launched
// (or failed to launch); it does not wait for exit.
func (p *Process) Start(ctx context.Context, globalEnv bool) error {
	p.mu.Lock()
	if p.status == StatusRunning || p.status == StatusStarting {
		p.mu.Unlock()
		metrics.RecordProcessStart(p.Name, "already_running")
		return fmt.Errorf("process %q already running", p.Name)
	}
	p.status = StatusStarting
	p.stdoutAccum = nil
	p.stderrAccum = nil
	p.exitCh = make(chan struct{})
	p.mu.Unlock()

	_, span := tracing.StartSpawn(ctx, p.tracer, p.Name)
	defer span.End()

	cmd := exec.Command("/bin/sh", "-c", p.cfg.Command)
	cmd.Dir = p.cfg.Cwd
	cmd.Env = mergeEnv(p.cfg.Env, globalEnv)
	cmd.SysProcAttr = processGroupAttrs(p.testMode)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		span.RecordError(err)
		return p.failSpawn(cliererrors.Wrap(err, "attaching stdout pipe"))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		span.RecordError(err)
		return p.failSpawn(cliererrors.Wrap(err, "attaching stderr pipe"))
	}

	if err := cmd.Start(); err != nil {
		span.RecordError(err)
		return p.failSpawn(cliererrors.Wrapf(err, "spawning %q", p.Name))
	}

	p.mu.Lock()
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	now := time.Now()
	p.startedAt = &now
	p.status = StatusRunning
	p.mu.Unlock()

	metrics.RecordProcessStart(p.Name, "started")
	p.raise(Event{Kind: EventStart, Pid: cmd.Process.Pid})
	p.armStabilityTimer()

	var wg sync.WaitGroup
	wg.Add(2)
	go p.pump(stdout, EventStdout, &wg)
	go p.pump(stderr, EventStderr, &wg)

	go p.awaitExit(cmd, &wg, globalEnv)
	go p.trackUptime()

	return nil
}

// trackUptime periodically records this process's running duration until it
// exits, at which point uptime is zeroed.
func (p *Process) trackUptime() {
	p.mu.Lock()
	exitCh := p.exitCh
	startedAt := *p.startedAt
	p.mu.Unlock()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-exitCh:
			metrics.SetProcessUptime(p.Name, 0)
			return
		case <-ticker.C:
			metrics.SetProcessUptime(p.Name, time.Since(startedAt))
		}
	}
}

// failSpawn reports a spawn-time failure: an error event, then an
// immediate terminal exit with empty logs.
func (p *Process) failSpawn(err error) error {
	p.mu.Lock()
	p.status = StatusCrashed
	p.mu.Unlock()
	metrics.RecordProcessStart(p.Name, "spawn_error")
	p.raise(Event{Kind: EventError, Message: err.Error()})
	p.raise(Event{Kind: EventExit, Stdout: []string{}, Stderr: []string{}})
	return err
}

func (p *Process) pump(r io.Reader, kind EventKind, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		if kind == EventStdout {
			p.stdoutAccum = append(p.stdoutAccum, line)
			p.stdoutRing = appendRing(p.stdoutRing, line)
		} else {
			p.stderrAccum = append(p.stderrAccum, line)
			p.stderrRing = appendRing(p.stderrRing, line)
		}
		p.mu.Unlock()
		p.raise(Event{Kind: kind, Line: line})
	}
}

func appendRing(ring []string, line string) []string {
	ring = append(ring, line)
	if len(ring) > ringCapacity {
		ring = ring[len(ring)-ringCapacity:]
	}
	return ring
}

// awaitExit waits for both pipes to drain (wg) and for the child to exit,
// then delivers the exit event with the complete accumulated output. This
// ordering is the critical invariant here: exit must be observed
// strictly after both pipes drain.
func (p *Process) awaitExit(cmd *exec.Cmd, wg *sync.WaitGroup, globalEnv bool) {
	wg.Wait()
	err := cmd.Wait()

	var code *int
	var signal string
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if ws.Signaled() {
					signal = ws.Signal().String()
				} else {
					c := ws.ExitStatus()
					code = &c
				}
			}
		}
	} else {
		c := cmd.ProcessState.ExitCode()
		code = &c
	}

	p.mu.Lock()
	stdout := append([]string(nil), p.stdoutAccum...)
	stderr := append([]string(nil), p.stderrAccum...)
	unclean := signal != "" || (code != nil && *code != 0)
	wasStopping := p.status == StatusStopping
	if unclean {
		p.status = StatusCrashed
	} else {
		p.status = StatusStopped
	}
	if p.stabilityT != nil {
		p.stabilityT.Stop()
	}
	close(p.exitCh)
	p.mu.Unlock()

	p.raise(Event{Kind: EventExit, Code: code, Signal: signal, Stdout: stdout, Stderr: stderr})

	if wasStopping {
		return
	}
	if unclean && p.cfg.Type == config.ItemService && p.cfg.Restart != nil && p.cfg.Restart.Enabled {
		p.maybeAutoRestart(globalEnv)
	}
}

func (p *Process) maybeAutoRestart(globalEnv bool) {
	p.mu.Lock()
	seq := p.autoRestartSeq
	if p.restarts >= p.cfg.Restart.MaxRetries {
		p.mu.Unlock()
		p.raise(Event{Kind: EventError, Message: "max retries exceeded"})
		return
	}
	delay := time.Duration(p.cfg.Restart.DelayMS) * time.Millisecond
	p.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		p.mu.Lock()
		if p.autoRestartSeq != seq {
			p.mu.Unlock()
			return // superseded by an explicit Stop/Restart in the meantime
		}
		p.restarts++
		attempt := p.restarts
		p.mu.Unlock()

		metrics.RecordProcessRestart(p.Name)
		p.raise(Event{Kind: EventRestart, Attempt: attempt})
		_ = p.Start(context.Background(), globalEnv)
	}()
}

func (p *Process) armStabilityTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stabilityT != nil {
		p.stabilityT.Stop()
	}
	p.stabilityT = time.AfterFunc(stabilityWindow, func() {
		p.mu.Lock()
		if p.status == StatusRunning {
			p.restarts = 0
		}
		p.mu.Unlock()
	})
}

// Stop sends SIGTERM to the process group, escalating to SIGKILL after
// timeout (default 5s) or immediately when force is true. It waits until
// the child has exited (the exit event is raised right after), giving up
// 5s after SIGKILL. Stopping a process that has already exited still
// cancels any pending delayed auto-restart.
func (p *Process) Stop(ctx context.Context, force bool, timeout time.Duration) error {
	p.mu.Lock()
	p.autoRestartSeq++
	if p.status != StatusRunning && p.status != StatusStarting {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusStopping
	pgid := p.pid
	exitCh := p.exitCh
	p.mu.Unlock()

	_, span := tracing.StartStop(ctx, p.tracer, p.Name)
	defer span.End()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if force {
		_ = killGroup(pgid, syscall.SIGKILL)
	} else {
		_ = killGroup(pgid, syscall.SIGTERM)
		select {
		case <-exitCh:
			return nil
		case <-time.After(timeout):
			_ = killGroup(pgid, syscall.SIGKILL)
		case <-ctx.Done():
			_ = killGroup(pgid, syscall.SIGKILL)
		}
	}

	select {
	case <-exitCh:
	case <-time.After(5 * time.Second):
		// Best effort: the process group refused to die; report back to the
		// caller via the already-delivered or eventual exit event instead of
		// blocking shutdown forever.
	}
	return nil
}

// Restart stops (honoring force) then starts again, incrementing the
// restart counter and emitting a restart event.
func (p *Process) Restart(ctx context.Context, force bool, globalEnv bool) error {
	if err := p.Stop(ctx, force, 5*time.Second); err != nil {
		return err
	}
	p.mu.Lock()
	p.restarts++
	attempt := p.restarts
	p.mu.Unlock()
	metrics.RecordProcessRestart(p.Name)
	p.raise(Event{Kind: EventRestart, Attempt: attempt})
	return p.Start(ctx, globalEnv)
}

func mergeEnv(itemEnv map[string]string, globalEnv bool) []string {
	var base []string
	if globalEnv {
		base = os.Environ()
	}
	merged := make(map[string]string, len(base)+len(itemEnv))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range itemEnv {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
