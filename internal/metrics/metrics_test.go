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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordProcessStart_IncrementsByNameAndOutcome(t *testing.T) {
	RecordProcessStart("web-a", "started")
	RecordProcessStart("web-a", "started")
	RecordProcessStart("web-a", "spawn_error")

	assert.Equal(t, float64(2), testutil.ToFloat64(processStarts.WithLabelValues("web-a", "started")))
	assert.Equal(t, float64(1), testutil.ToFloat64(processStarts.WithLabelValues("web-a", "spawn_error")))
}

func TestRecordProcessRestart_Increments(t *testing.T) {
	RecordProcessRestart("worker-a")
	RecordProcessRestart("worker-a")
	assert.Equal(t, float64(2), testutil.ToFloat64(processRestarts.WithLabelValues("worker-a")))
}

func TestSetProcessUptime_RecordsSeconds(t *testing.T) {
	SetProcessUptime("svc-a", 90*time.Second)
	assert.Equal(t, float64(90), testutil.ToFloat64(processUptime.WithLabelValues("svc-a")))
}

func TestRecordEventEmitted_Increments(t *testing.T) {
	RecordEventEmitted("build:success:a")
	assert.Equal(t, float64(1), testutil.ToFloat64(eventsEmitted.WithLabelValues("build:success:a")))
}

func TestSetCircuitState_MapsKnownStates(t *testing.T) {
	SetCircuitState("orchestrator-a", "open")
	assert.Equal(t, float64(1), testutil.ToFloat64(circuitState.WithLabelValues("orchestrator-a")))

	SetCircuitState("orchestrator-a", "half-open")
	assert.Equal(t, float64(2), testutil.ToFloat64(circuitState.WithLabelValues("orchestrator-a")))

	SetCircuitState("orchestrator-a", "closed")
	assert.Equal(t, float64(0), testutil.ToFloat64(circuitState.WithLabelValues("orchestrator-a")))
}

func TestRecordWorkflowRun_Increments(t *testing.T) {
	RecordWorkflowRun("deploy-a", "completed")
	assert.Equal(t, float64(1), testutil.ToFloat64(workflowRuns.WithLabelValues("deploy-a", "completed")))
}

func TestObserveWorkflowStep_RecordsSample(t *testing.T) {
	ObserveWorkflowStep("deploy-b", "run", 250*time.Millisecond)

	var m dto.Metric
	require.NoError(t, workflowStepDuration.WithLabelValues("deploy-b", "run").(prometheus.Metric).Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestSetRateLimiterQueueDepth_Records(t *testing.T) {
	SetRateLimiterQueueDepth("orchestrator-b", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(rateLimiterQueueDepth.WithLabelValues("orchestrator-b")))
}
