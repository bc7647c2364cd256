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

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp
}

func TestStartProcess_RecordsSpanWithAttributes(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartProcess(context.Background(), tracer, "web")
	require.NotNil(t, span)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "process.run: web", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("process.name", "web"))
}

func TestStartStep_RecordsWorkflowAttributes(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartStep(context.Background(), tracer, "deploy", 2, "run")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "workflow.step: deploy[2]", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("workflow.name", "deploy"))
}

func TestStartWorkflowRun_RecordsTriggeredBy(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartWorkflowRun(context.Background(), tracer, "deploy", "build:success")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "workflow.run: deploy", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("workflow.triggered_by", "build:success"))
}

func TestSafeStart_NilTracerReturnsNilSpan(t *testing.T) {
	ctx, span := StartProcess(context.Background(), nil, "web")
	assert.Equal(t, context.Background(), ctx)
	assert.Nil(t, span)
}

func TestSpan_MethodsToleratesNilReceiver(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() {
		span.SetAttributes(map[string]any{"k": "v"})
		span.RecordError(errors.New("boom"))
		span.End()
	})
}

func TestSpan_RecordErrorSetsErrorStatus(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartProcess(context.Background(), tracer, "web")
	span.RecordError(errors.New("spawn failed"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

func TestTracer_NilProviderReturnsNoop(t *testing.T) {
	tr := Tracer(nil, "daemon")
	_, span := tr.Start(context.Background(), "anything")
	assert.NotNil(t, span)
}

func TestNewProvider_TagsServiceName(t *testing.T) {
	tp, err := NewProvider("clierd")
	require.NoError(t, err)
	assert.NotNil(t, tp)

	sr := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(sr)
	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	span.End()
	require.Len(t, sr.Ended(), 1)
	name, ok := sr.Ended()[0].Resource().Set().Value("service.name")
	assert.True(t, ok)
	assert.Equal(t, "clierd", name.AsString())
}
