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

// Package eventbus normalizes raw ProcessManager signals into typed Events
// and fans them out to named subscribers, grounded on the explicit,
// interface-based subscription style (no
// runtime emitter-patching, unlike the original source this spec was
// distilled from).
package eventbus

import (
	"sync"
	"time"

	"github.com/clierhq/clier/internal/processmanager"
)

// Handler receives one normalized Event.
type Handler func(Event)

// Unsubscribe removes the handler it was returned for from the bus. Safe to
// call more than once.
type Unsubscribe func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the single fan-out point for every typed event in the daemon.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]subscription
	nextID    uint64

	connectMu sync.Mutex
	pm        *processmanager.Manager
	connected bool
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[string][]subscription)}
}

// On registers handler for eventName and returns an Unsubscribe that
// removes only this handler, leaving other subscribers of the same event
// name untouched. Handlers for a given name are dispatched in registration
// order.
func (b *Bus) On(eventName string, handler Handler) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[eventName] = append(b.listeners[eventName], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.listeners[eventName]
		for i, s := range subs {
			if s.id == id {
				b.listeners[eventName] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit dispatches ev to every handler registered under ev.Name,
// synchronously, in registration order.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.listeners[ev.Name]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.handler(ev)
	}
}

// RemoveAllListeners clears every subscription for eventName, or every
// subscription on the bus if eventName is empty.
func (b *Bus) RemoveAllListeners(eventName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventName == "" {
		b.listeners = make(map[string][]subscription)
		return
	}
	delete(b.listeners, eventName)
}

// Connect attaches the bus to a ProcessManager, translating every raw
// signal into the normalized Event shape. Idempotent.
func (b *Bus) Connect(pm *processmanager.Manager) {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()
	if b.connected {
		return
	}
	b.connected = true
	b.pm = pm
	pm.Subscribe(b.normalize)
}

// Disconnect marks the bus as detached from its ProcessManager. Idempotent.
// (ProcessManager has no Unsubscribe primitive; Disconnect simply stops the
// bus from acting on further deliveries, an idempotent attach/detach
// without needing listener removal in the producer.)
func (b *Bus) Disconnect() {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()
	b.connected = false
}

func (b *Bus) normalize(raw processmanager.RawEvent) {
	b.connectMu.Lock()
	connected := b.connected
	b.connectMu.Unlock()
	if !connected {
		return
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch raw.Kind {
	case "stdout":
		b.Emit(Event{Name: "stdout", ProcessName: raw.Name, Type: TypeStdout, Data: raw.Line, Timestamp: ts})
	case "stderr":
		b.Emit(Event{Name: "stderr", ProcessName: raw.Name, Type: TypeStderr, Data: raw.Line, Timestamp: ts})
	case "exit":
		b.Emit(Event{
			Name:        "process:exit",
			ProcessName: raw.Name,
			Type:        TypeCustom,
			Data: map[string]any{
				"code":   raw.Code,
				"signal": raw.Signal,
				"stdout": raw.Stdout,
				"stderr": raw.Stderr,
			},
			Timestamp: ts,
		})
	case "start":
		b.Emit(Event{
			Name:        "process:start",
			ProcessName: raw.Name,
			Type:        TypeCustom,
			Data:        map[string]any{"pid": raw.Pid},
			Timestamp:   ts,
		})
	case "restart":
		b.Emit(Event{
			Name:        "process:restart",
			ProcessName: raw.Name,
			Data:        map[string]any{"attempt": raw.Attempt},
			Timestamp:   ts,
		})
	case "error":
		b.Emit(Event{
			Name:        "process:error",
			ProcessName: raw.Name,
			Type:        TypeError,
			Data:        map[string]any{"message": raw.Message},
			Timestamp:   ts,
		})
	}
}
