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

	"golang.org/x/time/rate"

	"github.com/clierhq/clier/internal/metrics"
)

// RateLimiter paces scheduled operations with a token bucket that refills
// at N per minute and holds at most N tokens, so a burst of up to N runs at
// once; it is not a strict sliding window, and up to about 2N operations
// can run within one 60-second span. It enforces FIFO ordering across every Schedule call, regardless of how
// fast golang.org/x/time/rate's own token accounting would otherwise admit
// concurrent callers — the queue below is what makes FIFO a property of
// the code, not an accident of the limiter.
type RateLimiter struct {
	component string
	limiter   *rate.Limiter

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
}

// NewRateLimiter constructs a RateLimiter capped at maxOpsPerMinute,
// failing synchronously (rather than clamping) when the cap is invalid.
// component labels this limiter's queue-depth gauge.
func NewRateLimiter(maxOpsPerMinute int, component string) (*RateLimiter, error) {
	if maxOpsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limiter: maxOpsPerMinute must be > 0, got %d", maxOpsPerMinute)
	}
	rl := &RateLimiter{
		component: component,
		limiter:   rate.NewLimiter(rate.Limit(float64(maxOpsPerMinute)/60.0), maxOpsPerMinute),
	}
	rl.cond = sync.NewCond(&rl.mu)
	go rl.run()
	return rl, nil
}

func (rl *RateLimiter) run() {
	for {
		rl.mu.Lock()
		for len(rl.queue) == 0 && !rl.stopped {
			rl.cond.Wait()
		}
		if rl.stopped && len(rl.queue) == 0 {
			rl.mu.Unlock()
			return
		}
		job := rl.queue[0]
		rl.queue = rl.queue[1:]
		metrics.SetRateLimiterQueueDepth(rl.component, len(rl.queue))
		rl.mu.Unlock()

		_ = rl.limiter.Wait(context.Background())
		job()
	}
}

// Schedule enqueues fn, waits for its FIFO turn and the rate-limit token,
// runs it, and returns its result. An error returned by fn is returned to
// the caller of Schedule unchanged. A panic inside fn is not recovered; it
// happens on the limiter's dispatch goroutine, not in the caller.
func Schedule[T any](rl *RateLimiter, fn func() (T, error)) (T, error) {
	var zero T
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	rl.mu.Lock()
	if rl.stopped {
		rl.mu.Unlock()
		return zero, fmt.Errorf("rate limiter stopped")
	}
	rl.queue = append(rl.queue, func() {
		v, err := fn()
		done <- result{val: v, err: err}
	})
	metrics.SetRateLimiterQueueDepth(rl.component, len(rl.queue))
	rl.mu.Unlock()
	rl.cond.Signal()

	r := <-done
	return r.val, r.err
}

// UpdateMaxOpsPerMinute retunes the cap at runtime.
func (rl *RateLimiter) UpdateMaxOpsPerMinute(n int) error {
	if n <= 0 {
		return fmt.Errorf("rate limiter: maxOpsPerMinute must be > 0, got %d", n)
	}
	rl.limiter.SetLimit(rate.Limit(float64(n) / 60.0))
	rl.limiter.SetBurst(n)
	return nil
}

// Stop refuses further submissions. If dropWaiting is true, every queued
// (not yet running) job is dropped immediately instead of being allowed to
// drain.
func (rl *RateLimiter) Stop(dropWaiting bool) {
	rl.mu.Lock()
	rl.stopped = true
	if dropWaiting {
		rl.queue = nil
	}
	rl.mu.Unlock()
	rl.cond.Broadcast()
}

// QueueDepth reports the number of jobs waiting for their turn. Exposed
// for metrics (clier_rate_limiter_queue_depth).
func (rl *RateLimiter) QueueDepth() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.queue)
}
