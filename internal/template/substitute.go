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

// Package template implements a small {{…}} event-template substitution
// grammar, used by the Orchestrator when starting a dependent whose
// trigger cause is known. Generalized from the flat text/template-style
// TemplateContext in tombee-conductor's pkg/workflow/template.go, but
// implemented as direct token scanning rather than text/template, since
// this is one small closed grammar ({{event.name}}, {{event.data.<path>}},
// …) rather than full Go-template syntax.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Context carries the values substitutable into a {{…}} token.
type Context struct {
	EventName      string
	EventSource    string
	EventType      string
	EventTimestamp string
	EventData      any
	ProcessName    string
	ProcessType    string
	ProjectName    string
}

var tokenRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Substitute replaces every recognized {{…}} token in s with its value
// from ctx. Unknown tokens — including a data path that doesn't resolve —
// are left intact.
func Substitute(s string, ctx Context) string {
	return tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		path := m[1]
		if v, ok := resolve(path, ctx); ok {
			return v
		}
		return tok
	})
}

func resolve(path string, ctx Context) (string, bool) {
	switch {
	case path == "event.name":
		return ctx.EventName, true
	case path == "event.source":
		return ctx.EventSource, true
	case path == "event.type":
		return ctx.EventType, true
	case path == "event.timestamp":
		return ctx.EventTimestamp, true
	case path == "process.name":
		return ctx.ProcessName, true
	case path == "process.type":
		return ctx.ProcessType, true
	case path == "clier.project":
		return ctx.ProjectName, true
	case strings.HasPrefix(path, "event.data."):
		return resolveDataPath(ctx.EventData, strings.TrimPrefix(path, "event.data."))
	default:
		return "", false
	}
}

// resolveDataPath walks a dotted path with optional [n] numeric indices
// into nested maps/slices produced from JSON-ish data (map[string]any,
// []any). A missing key, wrong-typed intermediate value, or out-of-range
// index is reported as "not found" rather than erroring, per DESIGN.md
// Open Question #3.
func resolveDataPath(data any, path string) (string, bool) {
	cur := data
	for _, seg := range strings.Split(path, ".") {
		key, indices, err := splitIndices(seg)
		if err != nil {
			return "", false
		}
		if key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur, ok = m[key]
			if !ok {
				return "", false
			}
		}
		for _, idx := range indices {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return "", false
			}
			cur = arr[idx]
		}
	}
	return stringify(cur), true
}

// splitIndices parses a path segment like "items[0][1]" into its leading
// key ("items") and the list of indices ([0, 1]).
func splitIndices(seg string) (string, []int, error) {
	i := strings.IndexByte(seg, '[')
	if i < 0 {
		return seg, nil, nil
	}
	key := seg[:i]
	rest := seg[i:]
	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed index in %q", seg)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated index in %q", seg)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("non-numeric index in %q: %w", seg, err)
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	return key, indices, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
