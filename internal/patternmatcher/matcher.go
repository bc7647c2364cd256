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

// Package patternmatcher compiles named regex->event rules and evaluates
// them against single lines, grounded on the compile-at-registration-time,
// structured-rule style tombee-conductor uses for its webhook/trigger
// pattern configs (internal/triggers/webhook.go).
package patternmatcher

import (
	"regexp"
	"strings"
	"sync"

	cliererrors "github.com/clierhq/clier/pkg/errors"
)

type rule struct {
	owner string
	re    *regexp.Regexp
	emit  string
}

// Matcher holds a list of owner-scoped regex rules.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// New constructs an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern compiles pattern and registers it under owner, emitting emit
// when it matches. A malformed regex is rejected here; Match never fails.
func (m *Matcher) AddPattern(owner, pattern, emit string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return &cliererrors.ValidationError{Field: "pattern", Message: err.Error()}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{owner: owner, re: re, emit: emit})
	return nil
}

// RemovePatterns removes every rule registered under owner.
func (m *Matcher) RemovePatterns(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rules[:0]
	for _, r := range m.rules {
		if r.owner != owner {
			kept = append(kept, r)
		}
	}
	m.rules = kept
}

// Match splits input on newlines and tests every rule against every line,
// returning each distinct resulting emit name at most once, in the order
// first matched: line by line, and within a line in the order the rules
// were registered.
func (m *Matcher) Match(input string) []string {
	m.mu.RLock()
	rules := append([]rule(nil), m.rules...)
	m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(input, "\n") {
		for _, r := range rules {
			if !r.re.MatchString(line) {
				continue
			}
			if _, ok := seen[r.emit]; ok {
				continue
			}
			seen[r.emit] = struct{}{}
			out = append(out, r.emit)
		}
	}
	return out
}
