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

package errors

import (
	"fmt"
	"strings"
)

// CycleError reports a cycle detected in the orchestrator's trigger graph.
// Path lists the node names in cycle order, starting and ending on the same
// name, e.g. ["a", "b", "c", "a"].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in trigger graph: %s", strings.Join(e.Path, " -> "))
}

// UnknownWorkflowError reports a reference to a workflow name that was never
// loaded.
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow: %s", e.Name)
}

// UnknownProcessError reports a reference to a pipeline item name that was
// never loaded.
type UnknownProcessError struct {
	Name string
}

func (e *UnknownProcessError) Error() string {
	return fmt.Sprintf("unknown process: %s", e.Name)
}

// AlreadyRunningError reports an attempt to start a workflow run (or
// process) that already has an active run under the same name.
type AlreadyRunningError struct {
	Kind string // "workflow" or "process"
	Name string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s %q is already running", e.Kind, e.Name)
}

// CircuitOpenError reports that the circuit breaker short-circuited a call
// without invoking it.
type CircuitOpenError struct {
	Component string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open: %s", e.Component)
}

// TimeoutError reports a deadline that elapsed waiting for an event, a
// workflow step, or an entire workflow run.
type TimeoutError struct {
	Subject string
	MillisElapsed int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s after %dms", e.Subject, e.MillisElapsed)
}

// ValidationError reports a rejected input at a component boundary (e.g. a
// malformed regex pattern passed to PatternMatcher.AddPattern).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}
