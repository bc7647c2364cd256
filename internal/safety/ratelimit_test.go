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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_FIFOOrderBehindABlockedJob(t *testing.T) {
	rl, err := NewRateLimiter(100000, "test")
	require.NoError(t, err)
	defer rl.Stop(true)

	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	go Schedule(rl, func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	})
	time.Sleep(10 * time.Millisecond) // ensure the blocker is running first

	for i := 0; i < 5; i++ {
		i := i
		go Schedule(rl, func() (struct{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return struct{}{}, nil
		})
		time.Sleep(5 * time.Millisecond) // bias enqueue order
	}

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestNewRateLimiter_RejectsInvalidCap(t *testing.T) {
	_, err := NewRateLimiter(0, "test")
	assert.Error(t, err)
	_, err = NewRateLimiter(-1, "test")
	assert.Error(t, err)
}

func TestRateLimiter_ConcurrentSchedulingCompletesAll(t *testing.T) {
	rl, err := NewRateLimiter(100000, "test")
	require.NoError(t, err)
	defer rl.Stop(true)

	const n = 50
	var order []int

	// Release every caller at once; each concurrent Schedule call must
	// return its own job's result.
	var wg sync.WaitGroup
	results := make([][]int, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := Schedule(rl, func() (int, error) { return i, nil })
			require.NoError(t, err)
			results[i] = []int{v}
		}()
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		order = append(order, results[i][0])
	}
	assert.Len(t, order, n)
}

func TestRateLimiter_StopRejectsFurtherSubmissions(t *testing.T) {
	rl, err := NewRateLimiter(60, "test")
	require.NoError(t, err)
	rl.Stop(true)

	_, err = Schedule(rl, func() (struct{}, error) { return struct{}{}, nil })
	assert.Error(t, err)
}

func TestRateLimiter_QueueDepth(t *testing.T) {
	rl, err := NewRateLimiter(1, "test")
	require.NoError(t, err)
	defer rl.Stop(true)

	done := make(chan struct{})
	go func() {
		_, _ = Schedule(rl, func() (struct{}, error) { return struct{}{}, nil })
		close(done)
	}()
	<-done
	assert.Equal(t, 0, rl.QueueDepth())
}
