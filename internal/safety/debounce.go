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

// Package safety implements the three guard components the Supervisor
// wraps orchestrator event handling in: Debouncer, RateLimiter, and
// CircuitBreaker, grounded on tombee-conductor's debounce-window vocabulary
// (pkg/workflow/trigger.go's FileTriggerConfig.Debounce /
// internal/controller/filewatcher) and its timeout/threshold vocabulary
// used across the runner and scheduler packages.
package safety

import (
	"sync"
	"time"
)

// Debouncer coalesces repeated invocations keyed by an arbitrary string,
// firing only the most recently registered function once key has been
// quiet for delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
}

// NewDebouncer constructs a Debouncer with the given quiet window.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

// Debounce arms (or re-arms) the timer for key and stores fn as the
// pending function. A call for the same key before the timer fires
// replaces fn without firing the previous one — at most one pending fn per
// key, ever.
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel removes key's pending timer without firing it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// CancelAll clears every pending timer without firing any of them.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}

// Pending reports how many keys currently have an armed timer.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
