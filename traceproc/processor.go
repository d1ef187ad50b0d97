// Copyright 2025 The NLP Odyssey Authors
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

package traceproc

import (
	"context"

	"github.com/nlpodyssey/agent-tracelog-go/logsink"
	"github.com/nlpodyssey/agent-tracelog-go/tracing"
	"github.com/openai/openai-go/v3/packages/param"
)

// TracingProcessor implements tracing.Processor by routing trace and
// span callbacks through a bounded TraceRegistry onto a logging sink.
type TracingProcessor struct {
	registry *TraceRegistry
}

type TracingProcessorParams struct {
	// The sink spans are written to.
	// Defaults to a BackendSink configured from the environment.
	Sink logsink.Sink
	// The maximum number of simultaneously tracked traces.
	// Default: DefaultMaxTraces.
	MaxTraces param.Opt[int]
}

func NewTracingProcessor(params TracingProcessorParams) (*TracingProcessor, error) {
	sink := params.Sink
	if sink == nil {
		sink = logsink.NewBackendSink(logsink.BackendSinkParams{})
	}

	registry, err := NewTraceRegistry(sink, params.MaxTraces.Or(DefaultMaxTraces))
	if err != nil {
		return nil, err
	}
	return &TracingProcessor{registry: registry}, nil
}

// Registry returns the underlying trace registry.
func (p *TracingProcessor) Registry() *TraceRegistry {
	return p.registry
}

func (p *TracingProcessor) OnTraceStart(_ context.Context, trace tracing.Trace) error {
	return p.registry.StartTrace(TraceInfo{
		TraceID:  trace.TraceID(),
		Name:     trace.Name(),
		GroupID:  trace.GroupID(),
		Metadata: trace.Metadata(),
	})
}

func (p *TracingProcessor) OnTraceEnd(_ context.Context, trace tracing.Trace) error {
	return p.registry.EndTrace(trace.TraceID())
}

func (p *TracingProcessor) OnSpanStart(_ context.Context, span tracing.Span) error {
	p.registry.StartSpan(span.TraceID(), span.SpanID(), span.ParentID(), span.SpanData())
	return nil
}

func (p *TracingProcessor) OnSpanEnd(_ context.Context, span tracing.Span) error {
	return p.registry.EndSpan(span.TraceID(), span.SpanID(), span)
}

func (p *TracingProcessor) ForceFlush(ctx context.Context) error {
	return p.registry.ForceFlush(ctx)
}

func (p *TracingProcessor) Shutdown(ctx context.Context) error {
	return p.registry.Shutdown(ctx)
}
