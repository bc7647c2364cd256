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

package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clierhq/clier/internal/metrics"
	cliererrors "github.com/clierhq/clier/pkg/errors"
)

// State is the circuit breaker's state-machine position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// BreakerEvent names the events a CircuitBreaker raises.
type BreakerEvent string

const (
	EventSuccess  BreakerEvent = "success"
	EventFailure  BreakerEvent = "failure"
	EventTimeout  BreakerEvent = "timeout"
	EventOpen     BreakerEvent = "open"
	EventHalfOpen BreakerEvent = "halfOpen"
	EventClose    BreakerEvent = "close"
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	Timeout                  time.Duration
	ErrorThresholdPercentage float64 // 0-100
	VolumeThreshold          int
	ResetTimeout             time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = 50
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

// CircuitBreaker wraps async operations with a timeout and an open /
// half-open / closed state machine driven by the error rate over every
// call counted since the breaker last closed. The counts do not decay or
// roll over a time window; they reset only when a half-open probe succeeds.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	total       int
	failures    int
	resetTimer  *time.Timer
	halfOpenBusy bool

	listenersMu sync.Mutex
	listeners   map[BreakerEvent][]func()
}

// NewCircuitBreaker constructs a CircuitBreaker in the closed state.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		cfg:       cfg.withDefaults(),
		state:     StateClosed,
		listeners: make(map[BreakerEvent][]func()),
	}
}

// On registers a handler for one of the breaker's lifecycle events.
func (cb *CircuitBreaker) On(ev BreakerEvent, handler func()) {
	cb.listenersMu.Lock()
	defer cb.listenersMu.Unlock()
	cb.listeners[ev] = append(cb.listeners[ev], handler)
}

func (cb *CircuitBreaker) fire(ev BreakerEvent) {
	cb.listenersMu.Lock()
	handlers := make([]func(), len(cb.listeners[ev]))
	copy(handlers, cb.listeners[ev])
	cb.listenersMu.Unlock()
	for _, h := range handlers {
		h()
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Protect wraps fn with the breaker's timeout/open-fail-fast/half-open
// probe behavior. The returned function is safe to call concurrently.
func Protect[T any](cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var zero T

		cb.mu.Lock()
		switch cb.state {
		case StateOpen:
			cb.mu.Unlock()
			return zero, &cliererrors.CircuitOpenError{Component: cb.name}
		case StateHalfOpen:
			if cb.halfOpenBusy {
				cb.mu.Unlock()
				return zero, &cliererrors.CircuitOpenError{Component: cb.name}
			}
			cb.halfOpenBusy = true
		}
		cb.mu.Unlock()

		callCtx, cancel := context.WithTimeout(ctx, cb.cfg.Timeout)
		defer cancel()

		type result struct {
			val T
			err error
		}
		done := make(chan result, 1)
		go func() {
			v, err := fn(callCtx)
			done <- result{val: v, err: err}
		}()

		select {
		case r := <-done:
			if r.err != nil {
				cb.recordFailure(ctx)
				return zero, r.err
			}
			cb.recordSuccess()
			return r.val, nil
		case <-callCtx.Done():
			cb.recordTimeout(ctx)
			return zero, fmt.Errorf("circuit %s: operation timed out after %s", cb.name, cb.cfg.Timeout)
		}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.fire(EventSuccess)
	cb.mu.Lock()
	wasHalfOpen := cb.state == StateHalfOpen
	if wasHalfOpen {
		cb.halfOpenBusy = false
		cb.state = StateClosed
		cb.total = 0
		cb.failures = 0
		cb.stopResetTimerLocked()
	} else {
		cb.total++
	}
	cb.mu.Unlock()
	if wasHalfOpen {
		metrics.RecordCircuitBreakerTransition(string(StateHalfOpen), string(StateClosed))
		cb.fire(EventClose)
	}
}

func (cb *CircuitBreaker) recordFailure(ctx context.Context) {
	cb.fire(EventFailure)
	cb.noteFailure(ctx)
}

func (cb *CircuitBreaker) recordTimeout(ctx context.Context) {
	cb.fire(EventTimeout)
	cb.noteFailure(ctx)
}

func (cb *CircuitBreaker) noteFailure(ctx context.Context) {
	cb.mu.Lock()
	if cb.state == StateHalfOpen {
		cb.halfOpenBusy = false
		cb.openLocked()
		cb.mu.Unlock()
		metrics.RecordCircuitBreakerTransition(string(StateHalfOpen), string(StateOpen))
		trace.SpanFromContext(ctx).AddEvent("circuit.open")
		cb.fire(EventOpen)
		return
	}

	cb.total++
	cb.failures++
	shouldOpen := cb.total >= cb.cfg.VolumeThreshold &&
		(float64(cb.failures)/float64(cb.total))*100 >= cb.cfg.ErrorThresholdPercentage
	if shouldOpen {
		cb.openLocked()
		cb.mu.Unlock()
		metrics.RecordCircuitBreakerTransition(string(StateClosed), string(StateOpen))
		trace.SpanFromContext(ctx).AddEvent("circuit.open")
		cb.fire(EventOpen)
		return
	}
	cb.mu.Unlock()
}

// openLocked must be called with cb.mu held.
func (cb *CircuitBreaker) openLocked() {
	cb.state = StateOpen
	cb.stopResetTimerLocked()
	cb.resetTimer = time.AfterFunc(cb.cfg.ResetTimeout, cb.enterHalfOpen)
}

func (cb *CircuitBreaker) stopResetTimerLocked() {
	if cb.resetTimer != nil {
		cb.resetTimer.Stop()
		cb.resetTimer = nil
	}
}

func (cb *CircuitBreaker) enterHalfOpen() {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return
	}
	cb.state = StateHalfOpen
	cb.halfOpenBusy = false
	cb.mu.Unlock()
	metrics.RecordCircuitBreakerTransition(string(StateOpen), string(StateHalfOpen))
	cb.fire(EventHalfOpen)
}

// Shutdown disarms all timers and removes every listener.
func (cb *CircuitBreaker) Shutdown() {
	cb.mu.Lock()
	cb.stopResetTimerLocked()
	cb.mu.Unlock()

	cb.listenersMu.Lock()
	cb.listeners = make(map[BreakerEvent][]func())
	cb.listenersMu.Unlock()
}
