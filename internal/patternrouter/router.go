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

// Package patternrouter feeds stdout/stderr lines through a PatternMatcher
// and emits the resulting events back onto the EventBus, also owning the
// built-in stream->event mappings (stderr/crashed/success/
// failure/exit), grounded on the thin consumer-of-a-lower-layer shape of
// tombee-conductor's internal/controller/trigger over internal/triggers.
package patternrouter

import (
	"fmt"
	"time"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/eventbus"
	"github.com/clierhq/clier/internal/patternmatcher"
)

// Router owns per-item stdout pattern rules plus the built-in mapping from
// raw stream/exit signals to named events.
type Router struct {
	matcher *patternmatcher.Matcher
	bus     *eventbus.Bus
	items   map[string]config.PipelineItem
}

// New constructs a Router bound to bus, with rules registered from every
// item's events.on_stdout list at load time.
func New(bus *eventbus.Bus, items []config.PipelineItem) (*Router, error) {
	r := &Router{
		matcher: patternmatcher.New(),
		bus:     bus,
		items:   make(map[string]config.PipelineItem, len(items)),
	}
	for _, item := range items {
		r.items[item.Name] = item
		for _, rule := range item.Events.OnStdout {
			if err := r.matcher.AddPattern(item.Name, rule.Pattern, rule.Emit); err != nil {
				return nil, fmt.Errorf("process %q: %w", item.Name, err)
			}
		}
	}
	return r, nil
}

// Connect subscribes the router to the bus's raw stdout/stderr/exit
// events.
func (r *Router) Connect() {
	r.bus.On("stdout", r.handleStdout)
	r.bus.On("stderr", r.handleStderr)
	r.bus.On("process:exit", r.handleExit)
}

func (r *Router) handleStdout(ev eventbus.Event) {
	line, _ := ev.Data.(string)
	for _, emit := range r.matcher.Match(line) {
		r.emit(emit, ev.ProcessName)
	}
}

func (r *Router) handleStderr(ev eventbus.Event) {
	item, ok := r.items[ev.ProcessName]
	if ok && item.Events.OnStderr {
		r.emit(ev.ProcessName+":stderr", ev.ProcessName)
	}
}

func (r *Router) handleExit(ev eventbus.Event) {
	item, ok := r.items[ev.ProcessName]
	if !ok {
		return
	}
	data, _ := ev.Data.(map[string]any)
	code, _ := data["code"].(*int)
	signal, _ := data["signal"].(string)

	unclean := signal != "" || (code != nil && *code != 0)

	if unclean && item.Events.OnCrash {
		r.emit(ev.ProcessName+":crashed", ev.ProcessName)
	}

	if item.Type == config.ItemTask {
		if code != nil && *code == 0 {
			r.emit(ev.ProcessName+":success", ev.ProcessName)
		} else if item.ContinueOnFailure {
			r.emit(ev.ProcessName+":failure", ev.ProcessName)
		}
	}

	r.emit(fmt.Sprintf("process:exit:%s", ev.ProcessName), ev.ProcessName)
}

func (r *Router) emit(name, processName string) {
	r.bus.Emit(eventbus.Event{
		Name:        name,
		ProcessName: processName,
		Type:        eventbus.TypeCustom,
		Timestamp:   time.Now(),
	})
}
