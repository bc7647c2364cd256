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

package workflow

import (
	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/process"
)

// StatusSource answers "what state is this process in right now" for
// condition evaluation. An unknown process is treated as stopped.
type StatusSource interface {
	ProcessState(name string) process.Status
}

// evaluate implements the WorkflowCondition grammar: exactly
// one of Process+Is, Not, All, or Any is set on cond. This is a closed,
// four-shape grammar, so it is evaluated directly rather than through a
// general expression library — see DESIGN.md's dropped-dependency ledger
// for expr-lang.
func evaluate(cond *config.Condition, status StatusSource) bool {
	if cond == nil {
		return true
	}
	switch {
	case cond.Not != nil:
		return !evaluate(cond.Not, status)
	case len(cond.All) > 0:
		for i := range cond.All {
			if !evaluate(&cond.All[i], status) {
				return false
			}
		}
		return true
	case len(cond.Any) > 0:
		for i := range cond.Any {
			if evaluate(&cond.Any[i], status) {
				return true
			}
		}
		return false
	case cond.Process != "":
		current := status.ProcessState(cond.Process)
		return conditionMatchesStatus(cond.Is, current)
	default:
		return true
	}
}

func conditionMatchesStatus(is string, current process.Status) bool {
	switch is {
	case "running":
		return current == process.StatusRunning || current == process.StatusStarting
	case "stopped":
		return current == process.StatusStopped || current == process.StatusIdle
	case "crashed":
		return current == process.StatusCrashed
	default:
		return string(current) == is
	}
}
