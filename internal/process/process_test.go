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

package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clierhq/clier/internal/config"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) collect(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, kind EventKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, k := range r.kinds() {
			if k == kind {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestProcess_StartEmitsOrderedLifecycleEvents(t *testing.T) {
	rec := &eventRecorder{}
	p := New("echoer", config.PipelineItem{
		Command: "echo hello; echo oops 1>&2; exit 0",
		Type:    config.ItemTask,
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	rec.waitFor(t, EventExit)

	kinds := rec.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventStart, kinds[0])
	assert.Equal(t, EventExit, kinds[len(kinds)-1])

	assert.Equal(t, StatusStopped, p.Status())
}

func TestProcess_ExitEventCarriesAccumulatedOutput(t *testing.T) {
	rec := &eventRecorder{}
	p := New("lines", config.PipelineItem{
		Command: "echo one; echo two; echo three 1>&2",
		Type:    config.ItemTask,
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	rec.waitFor(t, EventExit)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var exitEv Event
	for _, ev := range rec.events {
		if ev.Kind == EventExit {
			exitEv = ev
		}
	}
	assert.Equal(t, []string{"one", "two"}, exitEv.Stdout)
	assert.Equal(t, []string{"three"}, exitEv.Stderr)
}

func TestProcess_NonzeroExitMarksCrashed(t *testing.T) {
	rec := &eventRecorder{}
	p := New("failer", config.PipelineItem{
		Command: "exit 3",
		Type:    config.ItemTask,
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	rec.waitFor(t, EventExit)
	assert.Equal(t, StatusCrashed, p.Status())
}

func TestProcess_StopSendsTermAndWaitsForExit(t *testing.T) {
	rec := &eventRecorder{}
	p := New("sleeper", config.PipelineItem{
		Command: "trap 'exit 0' TERM; sleep 30 & wait",
		Type:    config.ItemService,
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	require.Eventually(t, func() bool { return p.Status() == StatusRunning }, time.Second, 5*time.Millisecond)

	err := p.Stop(context.Background(), false, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, p.Status())
}

func TestProcess_AutoRestartOnUncleanExit(t *testing.T) {
	rec := &eventRecorder{}
	p := New("crasher", config.PipelineItem{
		Command: "exit 1",
		Type:    config.ItemService,
		Restart: &config.RestartPolicy{Enabled: true, MaxRetries: 3, DelayMS: 5},
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	require.Eventually(t, func() bool { return p.Restarts() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestProcess_RestartCounterGuardsStaleAutoRestart(t *testing.T) {
	rec := &eventRecorder{}
	p := New("crasher", config.PipelineItem{
		Command: "exit 1",
		Type:    config.ItemService,
		Restart: &config.RestartPolicy{Enabled: true, MaxRetries: 5, DelayMS: 200},
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	rec.waitFor(t, EventExit)

	// Stop() bumps autoRestartSeq; the delayed auto-restart goroutine armed
	// by the crash above must see itself superseded and do nothing.
	require.NoError(t, p.Stop(context.Background(), true, time.Second))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, p.Restarts())
}

func TestProcess_MaxRetriesExceededStopsRestarting(t *testing.T) {
	rec := &eventRecorder{}
	p := New("crasher", config.PipelineItem{
		Command: "exit 1",
		Type:    config.ItemService,
		Restart: &config.RestartPolicy{Enabled: true, MaxRetries: 1, DelayMS: 5},
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	require.Eventually(t, func() bool { return p.Restarts() >= 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	finalCount := p.Restarts()
	assert.Equal(t, 1, finalCount)

	require.Eventually(t, func() bool {
		for _, k := range rec.kinds() {
			if k == EventError {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestProcess_StartTwiceWhileRunningErrors(t *testing.T) {
	rec := &eventRecorder{}
	p := New("sleeper", config.PipelineItem{
		Command: "sleep 1",
		Type:    config.ItemTask,
	}, rec.collect, true, nil)

	require.NoError(t, p.Start(context.Background(), false))
	err := p.Start(context.Background(), false)
	assert.Error(t, err)
	_ = p.Stop(context.Background(), true, time.Second)
}

func TestProcess_SpawnFailureRaisesErrorThenExit(t *testing.T) {
	rec := &eventRecorder{}
	p := New("bad-cwd", config.PipelineItem{
		Command: "echo hi",
		Cwd:     "/definitely/does/not/exist/xyz",
		Type:    config.ItemTask,
	}, rec.collect, true, nil)

	_ = p.Start(context.Background(), false)
	rec.waitFor(t, EventExit)

	kinds := rec.kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, EventError, kinds[0])
	assert.Equal(t, EventExit, kinds[1])
	assert.Equal(t, StatusCrashed, p.Status())
}
