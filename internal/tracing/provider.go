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

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewProvider constructs an sdktrace.TracerProvider tagged with
// serviceName, no exporter attached. Wiring a real exporter (OTLP,
// console, ...) is left to the operator embedding this package; the
// daemon core only needs the Tracer seam.
func NewProvider(serviceName string) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
}

// Tracer returns provider's named tracer, or otel's no-op tracer if
// provider is nil.
func Tracer(provider trace.TracerProvider, name string) trace.Tracer {
	if provider == nil {
		return noopTracer{}
	}
	return provider.Tracer(name)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return trace.NewNoopTracerProvider().Tracer("noop").Start(ctx, spanName, opts...)
}
