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

package eventbus

import "time"

// Type categorizes a normalized Event.
type Type string

const (
	TypeStdout  Type = "stdout"
	TypeStderr  Type = "stderr"
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeCrashed Type = "crashed"
	TypeCustom  Type = "custom"
)

// Event is the normalized, typed event every subscriber of the bus sees.
type Event struct {
	Name        string
	ProcessName string
	Type        Type
	Data        any
	Timestamp   time.Time
}
