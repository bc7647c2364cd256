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

// Package tracing wraps OpenTelemetry spans with daemon-specific helpers,
// grounded on tombee-conductor's internal/tracing.WorkflowSpan (span
// wrapper with typed attribute setters) and internal/daemon/runner's
// safeStartSpan/safeEndSpan family (panic-recovering span helpers so a
// tracing bug never takes down process supervision).
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an otel span with attribute setters tolerant of a nil
// underlying span, so tracing can be disabled by passing a no-op tracer.
type Span struct {
	span trace.Span
}

// StartProcess opens a span covering one ManagedProcess lifecycle.
func StartProcess(ctx context.Context, tracer trace.Tracer, processName string) (context.Context, *Span) {
	return safeStart(ctx, tracer, fmt.Sprintf("process.run: %s", processName),
		attribute.String("process.name", processName),
		attribute.String("span.type", "process.run"),
	)
}

// StartSpawn opens a span covering one process spawn attempt: building the
// command, attaching pipes, and calling exec.Cmd.Start.
func StartSpawn(ctx context.Context, tracer trace.Tracer, processName string) (context.Context, *Span) {
	return safeStart(ctx, tracer, "process.spawn",
		attribute.String("process.name", processName),
	)
}

// StartStop opens a span covering one process stop request: signal delivery
// through exit confirmation.
func StartStop(ctx context.Context, tracer trace.Tracer, processName string) (context.Context, *Span) {
	return safeStart(ctx, tracer, "process.stop",
		attribute.String("process.name", processName),
	)
}

// StartStep opens a span covering one workflow step execution.
func StartStep(ctx context.Context, tracer trace.Tracer, workflowName string, stepIndex int, action string) (context.Context, *Span) {
	return safeStart(ctx, tracer, fmt.Sprintf("workflow.step: %s[%d]", workflowName, stepIndex),
		attribute.String("workflow.name", workflowName),
		attribute.Int("step.index", stepIndex),
		attribute.String("step.action", action),
		attribute.String("span.type", "workflow.step"),
	)
}

// StartWorkflowRun opens a root span covering an entire workflow run.
func StartWorkflowRun(ctx context.Context, tracer trace.Tracer, workflowName, triggeredBy string) (context.Context, *Span) {
	return safeStart(ctx, tracer, fmt.Sprintf("workflow.run: %s", workflowName),
		attribute.String("workflow.name", workflowName),
		attribute.String("workflow.triggered_by", triggeredBy),
		attribute.String("span.type", "workflow.run"),
	)
}

func safeStart(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	if tracer == nil {
		return ctx, nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic during span start", "error", r, "span_name", name)
		}
	}()
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// SetAttributes adds key-value attributes to the span.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic during span set attributes", "error", r)
		}
	}()
	var otelAttrs []attribute.KeyValue
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			otelAttrs = append(otelAttrs, attribute.String(k, val))
		case int:
			otelAttrs = append(otelAttrs, attribute.Int(k, val))
		case int64:
			otelAttrs = append(otelAttrs, attribute.Int64(k, val))
		case float64:
			otelAttrs = append(otelAttrs, attribute.Float64(k, val))
		case bool:
			otelAttrs = append(otelAttrs, attribute.Bool(k, val))
		default:
			otelAttrs = append(otelAttrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	s.span.SetAttributes(otelAttrs...)
}

// RecordError records err on the span and marks it as errored.
func (s *Span) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic during span record error", "error", r)
		}
	}()
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End closes the span.
func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic during span end", "error", r)
		}
	}()
	s.span.End()
}
