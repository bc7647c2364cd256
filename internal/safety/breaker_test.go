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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cliererrors "github.com/clierhq/clier/pkg/errors"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		Timeout:                  time.Second,
		ErrorThresholdPercentage: 50,
		VolumeThreshold:          2,
		ResetTimeout:             50 * time.Millisecond,
	})

	boom := Protect(cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, errors.New("boom")
	})

	_, err := boom(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateClosed, cb.State())

	_, err = boom(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	_, err = boom(context.Background())
	var circuitErr *cliererrors.CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
}

func TestCircuitBreaker_HalfOpenAllowsOneProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		Timeout:                  time.Second,
		ErrorThresholdPercentage: 50,
		VolumeThreshold:          1,
		ResetTimeout:             20 * time.Millisecond,
	})

	fail := Protect(cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, errors.New("boom")
	})
	_, err := fail(context.Background())
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.State())

	require.Eventually(t, func() bool {
		return cb.State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	succeed := Protect(cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	_, err = succeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TimeoutCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		Timeout:          10 * time.Millisecond,
		VolumeThreshold:  1,
		ResetTimeout:     time.Second,
		ErrorThresholdPercentage: 1,
	})

	slow := Protect(cb, func(ctx context.Context) (struct{}, error) {
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})

	_, err := slow(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_Shutdown(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{VolumeThreshold: 1, ResetTimeout: time.Second})
	fail := Protect(cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, errors.New("boom")
	})
	_, _ = fail(context.Background())
	require.Equal(t, StateOpen, cb.State())
	cb.Shutdown()
	// Shutdown disarms the reset timer; state stays open since nothing
	// else transitions it.
	assert.Equal(t, StateOpen, cb.State())
}
