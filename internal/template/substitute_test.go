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

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute_WellKnownTokens(t *testing.T) {
	ctx := Context{
		EventName:   "build:success",
		EventSource: "build",
		ProcessName: "deploy",
		ProjectName: "acme",
	}
	got := Substitute("{{process.name}} running after {{event.name}} from {{clier.project}}", ctx)
	assert.Equal(t, "deploy running after build:success from acme", got)
}

func TestSubstitute_DataPath(t *testing.T) {
	ctx := Context{
		EventData: map[string]any{
			"build": map[string]any{
				"artifacts": []any{"a.tar.gz", "b.tar.gz"},
			},
			"exitCode": 0,
		},
	}
	assert.Equal(t, "a.tar.gz", Substitute("{{event.data.build.artifacts[0]}}", ctx))
	assert.Equal(t, "0", Substitute("{{event.data.exitCode}}", ctx))
}

func TestSubstitute_UnresolvedTokenLeftIntact(t *testing.T) {
	ctx := Context{EventData: map[string]any{"foo": "bar"}}
	assert.Equal(t, "{{event.data.missing}}", Substitute("{{event.data.missing}}", ctx))
	assert.Equal(t, "{{not.a.real.token}}", Substitute("{{not.a.real.token}}", ctx))
}

func TestSubstitute_OutOfRangeIndexLeftIntact(t *testing.T) {
	ctx := Context{EventData: map[string]any{"items": []any{"x"}}}
	assert.Equal(t, "{{event.data.items[5]}}", Substitute("{{event.data.items[5]}}", ctx))
}

func TestSubstitute_NoTokens(t *testing.T) {
	assert.Equal(t, "plain string", Substitute("plain string", Context{}))
}
