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
	"testing"

	"github.com/nlpodyssey/agent-tracelog-go/logsink"
	"github.com/nlpodyssey/agent-tracelog-go/tracing"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProcessor(t *testing.T, sink logsink.Sink) *TracingProcessor {
	t.Helper()

	processor, err := NewTracingProcessor(TracingProcessorParams{Sink: sink})
	require.NoError(t, err)

	tracing.SetTraceProcessors([]tracing.Processor{processor})
	t.Cleanup(func() { tracing.SetTraceProcessors(nil) })

	return processor
}

func TestNewTracingProcessorDefaults(t *testing.T) {
	processor, err := NewTracingProcessor(TracingProcessorParams{})
	require.NoError(t, err)
	assert.IsType(t, &logsink.BackendSink{}, processor.Registry().sink)

	_, err = NewTracingProcessor(TracingProcessorParams{
		Sink:      logsink.NewMemorySink(),
		MaxTraces: param.NewOpt(0),
	})
	assert.Error(t, err)
}

func TestTracingProcessorEndToEnd(t *testing.T) {
	sink := logsink.NewMemorySink()
	setupProcessor(t, sink)
	ctx := t.Context()

	err := tracing.RunTrace(
		ctx, tracing.TraceParams{WorkflowName: "workflow", TraceID: "trace_123"},
		func(ctx context.Context, _ tracing.Trace) error {
			return tracing.AgentSpan(
				ctx, tracing.AgentSpanParams{Name: "agent_1", SpanID: "span_1"},
				func(ctx context.Context, _ tracing.Span) error {
					return tracing.FunctionSpan(
						ctx,
						tracing.FunctionSpanParams{
							Name:   "get_weather",
							SpanID: "span_2",
							Input:  "Turin",
							Output: "sunny",
						},
						func(context.Context, tracing.Span) error { return nil },
					)
				},
			)
		},
	)
	require.NoError(t, err)

	// Exactly the root and its two spans were ended, descendants first.
	endOrder := sink.EndOrder()
	require.Len(t, endOrder, 3)
	assert.Equal(t, "get_weather", endOrder[0].Name)
	assert.Equal(t, "agent_1", endOrder[1].Name)
	assert.Equal(t, "workflow", endOrder[2].Name)
	assert.Empty(t, sink.OpenSpans())

	// The sink hierarchy mirrors the span hierarchy.
	assert.Same(t, endOrder[1], endOrder[0].Parent)
	assert.Same(t, endOrder[2], endOrder[1].Parent)

	// The root carries the aggregated first input and last output.
	merged := endOrder[2].MergedFields()
	assert.Equal(t, "Turin", merged.Input)
	assert.Equal(t, "sunny", merged.Output)
}

func TestTracingProcessorGroupMetadata(t *testing.T) {
	sink := logsink.NewMemorySink()
	setupProcessor(t, sink)
	ctx := t.Context()

	err := tracing.RunTrace(
		ctx,
		tracing.TraceParams{
			WorkflowName: "workflow",
			TraceID:      "trace_123",
			GroupID:      "thread_9",
			Metadata:     map[string]any{"env": "ci"},
		},
		func(context.Context, tracing.Trace) error { return nil },
	)
	require.NoError(t, err)

	ended := sink.EndedSpans()
	require.Len(t, ended, 1)
	assert.Equal(t, map[string]any{
		"env":      "ci",
		"group_id": "thread_9",
	}, ended[0].MergedFields().Metadata)
}

func TestTracingProcessorOutOfOrderCallbacks(t *testing.T) {
	sink := logsink.NewMemorySink()
	processor, err := NewTracingProcessor(TracingProcessorParams{Sink: sink})
	require.NoError(t, err)
	ctx := t.Context()

	// A span end with no preceding span start is ignored.
	span := tracing.NewSpanImpl("trace_123", "span_1", "", nil, &tracing.CustomSpanData{Name: "c"})
	require.NoError(t, processor.OnSpanEnd(ctx, span))
	assert.Empty(t, sink.Spans())

	// A trace end with no preceding trace start is ignored too.
	trace := tracing.NewTraceImpl("workflow", "trace_123", "", nil, nil)
	require.NoError(t, processor.OnTraceEnd(ctx, trace))
	assert.Empty(t, sink.Spans())

	// Once the trace is known, the same events work.
	require.NoError(t, processor.OnTraceStart(ctx, trace))
	require.NoError(t, processor.OnSpanStart(ctx, span))
	require.NoError(t, processor.OnSpanEnd(ctx, span))
	require.NoError(t, processor.OnTraceEnd(ctx, trace))

	assert.Len(t, sink.EndOrder(), 2)
	assert.Equal(t, 0, processor.Registry().Len())
}
