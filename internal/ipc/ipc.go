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

// Package ipc defines the daemon's method catalog as compiled Go types: a
// Handlers interface plus one request/response struct pair per method. No
// socket, framing, or transport code lives here (explicit non-goal) —
// only the vocabulary a transport adapter would dispatch requests
// against, grounded on tombee-conductor's internal/daemon/api layout
// (one file of request/response structs per concern — runs, trigger,
// schedules — dispatched by a thin router this package deliberately
// omits).
package ipc

import (
	"context"
	"time"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/eventbus"
	"github.com/clierhq/clier/internal/logbuffer"
	"github.com/clierhq/clier/internal/processmanager"
	"github.com/clierhq/clier/internal/workflow"
)

// Handlers is the full method catalog a transport adapter dispatches
// against.
type Handlers interface {
	Ping(ctx context.Context) (PongResponse, error)
	DaemonStatus(ctx context.Context) (DaemonStatusResponse, error)
	DaemonHealth(ctx context.Context) (DaemonHealthResponse, error)

	ProcessList(ctx context.Context) ([]processmanager.Status, error)
	ProcessStop(ctx context.Context, req ProcessStopRequest) error
	ProcessRestart(ctx context.Context, req ProcessRestartRequest) error
	ProcessAdd(ctx context.Context, req ProcessAddRequest) error
	ProcessDelete(ctx context.Context, req ProcessDeleteRequest) error

	LogsQuery(ctx context.Context, req LogsQueryRequest) ([]logbuffer.Entry, error)
	LogsClear(ctx context.Context, req LogsClearRequest) (LogsClearResponse, error)

	EventsQuery(ctx context.Context, req EventsQueryRequest) ([]eventbus.Event, error)

	ConfigReload(ctx context.Context, req ConfigReloadRequest) (ConfigReloadResponse, error)

	WorkflowStart(ctx context.Context, req WorkflowStartRequest) (WorkflowStartResponse, error)
	WorkflowCancel(ctx context.Context, req WorkflowCancelRequest) error
	WorkflowList(ctx context.Context) ([]WorkflowStatus, error)
	WorkflowStatus(ctx context.Context, req WorkflowStatusRequest) (WorkflowStatusResult, error)

	StagesMap(ctx context.Context) (map[string][]string, error)
}

// PongResponse answers `ping`.
type PongResponse struct {
	Pong bool `json:"pong"`
}

// DaemonStatusResponse answers `daemon.status`.
type DaemonStatusResponse struct {
	Pid          int    `json:"pid"`
	UptimeMS     int64  `json:"uptime_ms"`
	ProcessCount int    `json:"processCount"`
	ConfigPath   string `json:"configPath"`
}

// DaemonHealthResponse answers `daemon.health`.
type DaemonHealthResponse struct {
	DaemonStatusResponse
	MemoryRSSBytes uint64        `json:"memoryRssBytes"`
	SubChecks      HealthSubChecks `json:"subChecks"`
}

// HealthSubChecks is the per-subsystem status within daemon.health.
type HealthSubChecks struct {
	ProcessManager bool `json:"processManager"`
	EventHandler   bool `json:"eventHandler"`
	Orchestrator   bool `json:"orchestrator"`
}

// ProcessStopRequest is the payload of `process.stop`.
type ProcessStopRequest struct {
	Name  string `json:"name"`
	Force bool   `json:"force,omitempty"`
}

// ProcessRestartRequest is the payload of `process.restart`.
type ProcessRestartRequest struct {
	Name  string `json:"name"`
	Force bool   `json:"force,omitempty"`
}

// ProcessAddRequest is the payload of `process.add`.
type ProcessAddRequest struct {
	Config config.PipelineItem `json:"config"`
}

// ProcessDeleteRequest is the payload of `process.delete`.
type ProcessDeleteRequest struct {
	Name string `json:"name"`
}

// LogsQueryRequest is the payload of `logs.query`. Lines and Since are
// mutually exclusive; Lines defaults to 100 when both are zero.
type LogsQueryRequest struct {
	Name  string     `json:"name"`
	Lines int        `json:"lines,omitempty"`
	Since *time.Time `json:"since,omitempty"`
}

// LogsClearRequest is the payload of `logs.clear`. An empty Name clears
// every process's logs.
type LogsClearRequest struct {
	Name string `json:"name,omitempty"`
}

// LogsClearResponse answers `logs.clear`.
type LogsClearResponse struct {
	Success bool     `json:"success"`
	Cleared []string `json:"cleared"`
}

// EventsQueryRequest is the payload of `events.query`.
type EventsQueryRequest struct {
	ProcessName string     `json:"processName,omitempty"`
	EventType   string     `json:"eventType,omitempty"`
	Name        string     `json:"name,omitempty"`
	Lines       int        `json:"lines,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
}

// ConfigReloadRequest is the payload of `config.reload`.
type ConfigReloadRequest struct {
	ConfigPath string `json:"configPath"`
}

// ConfigReloadResponse answers `config.reload`.
type ConfigReloadResponse struct {
	Success bool `json:"success"`
}

// WorkflowStartRequest is the payload of `workflow.start`.
type WorkflowStartRequest struct {
	Name string `json:"name"`
}

// WorkflowStartResponse answers `workflow.start`; the call is
// non-blocking, progress is queried via workflow.status.
type WorkflowStartResponse struct {
	Success bool `json:"success"`
}

// WorkflowCancelRequest is the payload of `workflow.cancel`.
type WorkflowCancelRequest struct {
	Name string `json:"name"`
}

// WorkflowStatusRequest is the payload of `workflow.status`. An empty
// Name requests every workflow's status.
type WorkflowStatusRequest struct {
	Name string `json:"name,omitempty"`
}

// WorkflowStatus is the wire shape of one workflow run.
type WorkflowStatus struct {
	Name        string             `json:"name"`
	Status      workflow.RunStatus `json:"status"`
	CurrentStep int                `json:"currentStep"`
	TotalSteps  int                `json:"totalSteps"`
	Error       string             `json:"error,omitempty"`
	TriggeredBy string             `json:"triggeredBy,omitempty"`
}

// WorkflowStatusResult is workflow.status's return value: either a single
// WorkflowStatus (Name given) or the full list (Name empty).
type WorkflowStatusResult struct {
	One *WorkflowStatus  `json:"one,omitempty"`
	All []WorkflowStatus `json:"all,omitempty"`
}
