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

package ipc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/eventbus"
	"github.com/clierhq/clier/internal/logbuffer"
	"github.com/clierhq/clier/internal/processmanager"
	"github.com/clierhq/clier/internal/workflow"
)

// fakeHandlers exists only to prove Handlers is implementable with ordinary
// Go types — a transport adapter would dispatch decoded requests against a
// real implementation the same way.
type fakeHandlers struct{}

func (fakeHandlers) Ping(ctx context.Context) (PongResponse, error) { return PongResponse{Pong: true}, nil }
func (fakeHandlers) DaemonStatus(ctx context.Context) (DaemonStatusResponse, error) {
	return DaemonStatusResponse{}, nil
}
func (fakeHandlers) DaemonHealth(ctx context.Context) (DaemonHealthResponse, error) {
	return DaemonHealthResponse{}, nil
}
func (fakeHandlers) ProcessList(ctx context.Context) ([]processmanager.Status, error) { return nil, nil }
func (fakeHandlers) ProcessStop(ctx context.Context, req ProcessStopRequest) error     { return nil }
func (fakeHandlers) ProcessRestart(ctx context.Context, req ProcessRestartRequest) error {
	return nil
}
func (fakeHandlers) ProcessAdd(ctx context.Context, req ProcessAddRequest) error       { return nil }
func (fakeHandlers) ProcessDelete(ctx context.Context, req ProcessDeleteRequest) error { return nil }
func (fakeHandlers) LogsQuery(ctx context.Context, req LogsQueryRequest) ([]logbuffer.Entry, error) {
	return nil, nil
}
func (fakeHandlers) LogsClear(ctx context.Context, req LogsClearRequest) (LogsClearResponse, error) {
	return LogsClearResponse{}, nil
}
func (fakeHandlers) EventsQuery(ctx context.Context, req EventsQueryRequest) ([]eventbus.Event, error) {
	return nil, nil
}
func (fakeHandlers) ConfigReload(ctx context.Context, req ConfigReloadRequest) (ConfigReloadResponse, error) {
	return ConfigReloadResponse{}, nil
}
func (fakeHandlers) WorkflowStart(ctx context.Context, req WorkflowStartRequest) (WorkflowStartResponse, error) {
	return WorkflowStartResponse{}, nil
}
func (fakeHandlers) WorkflowCancel(ctx context.Context, req WorkflowCancelRequest) error { return nil }
func (fakeHandlers) WorkflowList(ctx context.Context) ([]WorkflowStatus, error)          { return nil, nil }
func (fakeHandlers) WorkflowStatus(ctx context.Context, req WorkflowStatusRequest) (WorkflowStatusResult, error) {
	return WorkflowStatusResult{}, nil
}
func (fakeHandlers) StagesMap(ctx context.Context) (map[string][]string, error) { return nil, nil }

func TestFakeHandlers_SatisfiesHandlersInterface(t *testing.T) {
	var _ Handlers = fakeHandlers{}
}

func TestLogsQueryRequest_JSONRoundTrip(t *testing.T) {
	since := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	req := LogsQueryRequest{Name: "web", Since: &since}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got LogsQueryRequest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, req.Name, got.Name)
	assert.True(t, req.Since.Equal(*got.Since))
}

func TestWorkflowStatusResult_SingleVsAll(t *testing.T) {
	one := WorkflowStatusResult{One: &WorkflowStatus{Name: "deploy", Status: workflow.RunStatusRunning}}
	data, err := json.Marshal(one)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"deploy"`)

	all := WorkflowStatusResult{All: []WorkflowStatus{{Name: "deploy"}, {Name: "build"}}}
	data, err = json.Marshal(all)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"one"`)

	var cfg config.PipelineItem
	addReq := ProcessAddRequest{Config: cfg}
	_, err = json.Marshal(addReq)
	require.NoError(t, err)
}
