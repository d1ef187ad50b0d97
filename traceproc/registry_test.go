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
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nlpodyssey/agent-tracelog-go/logsink"
	"github.com/nlpodyssey/agent-tracelog-go/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, sink logsink.Sink, maxTraces int) *TraceRegistry {
	t.Helper()
	registry, err := NewTraceRegistry(sink, maxTraces)
	require.NoError(t, err)
	return registry
}

func functionSpan(traceID, spanID, parentID, name, input string, output any) tracing.Span {
	return tracing.NewSpanImpl(traceID, spanID, parentID, nil, &tracing.FunctionSpanData{
		Name:   name,
		Input:  input,
		Output: output,
	})
}

func customSpan(traceID, spanID, parentID, name string) tracing.Span {
	return tracing.NewSpanImpl(traceID, spanID, parentID, nil, &tracing.CustomSpanData{Name: name})
}

// rootHandle returns the sink span opened for the given workflow name.
func rootHandle(t *testing.T, sink *logsink.MemorySink, name string) *logsink.MemoryHandle {
	t.Helper()
	for _, h := range sink.Spans() {
		if h.SpanType == "trace" && h.Name == name {
			return h
		}
	}
	t.Fatalf("no root span named %q", name)
	return nil
}

func TestTraceRegistryFIFOEviction(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 3)

	for i := 0; i < 4; i++ {
		require.NoError(t, registry.StartTrace(TraceInfo{
			TraceID: fmt.Sprintf("t%d", i),
			Name:    fmt.Sprintf("w%d", i),
		}))
	}

	// The oldest trace was abandoned to make room for the fourth.
	assert.Equal(t, 3, registry.Len())

	t0Root := rootHandle(t, sink, "w0")
	assert.False(t, t0Root.Ended())
	assert.Empty(t, t0Root.Logs())

	// Events for the abandoned trace are silently dropped.
	spansBefore := len(sink.Spans())
	registry.StartSpan("t0", "s1", "", &tracing.CustomSpanData{Name: "late"})
	assert.Len(t, sink.Spans(), spansBefore)
	require.NoError(t, registry.EndSpan("t0", "s1", customSpan("t0", "s1", "", "late")))
	require.NoError(t, registry.EndTrace("t0"))
	assert.False(t, t0Root.Ended())
	assert.Equal(t, 3, registry.Len())

	// The surviving traces still work normally.
	for i := 1; i < 4; i++ {
		require.NoError(t, registry.EndTrace(fmt.Sprintf("t%d", i)))
		assert.True(t, rootHandle(t, sink, fmt.Sprintf("w%d", i)).Ended())
	}
	assert.Equal(t, 0, registry.Len())
}

func TestTraceRegistrySingleSlot(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 1)

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))
	registry.StartSpan("t1", "s1", "", &tracing.CustomSpanData{Name: "child"})
	require.Len(t, sink.Spans(), 2)

	// Starting a second trace abandons the first, spans included.
	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t2", Name: "w2"}))
	assert.Equal(t, 1, registry.Len())

	require.NoError(t, registry.EndSpan("t1", "s1", customSpan("t1", "s1", "", "child")))
	require.NoError(t, registry.EndTrace("t1"))

	// Nothing of the first trace ever reaches the sink again.
	for _, h := range sink.Spans()[:2] {
		assert.False(t, h.Ended())
		assert.Empty(t, h.Logs())
	}

	require.NoError(t, registry.EndTrace("t2"))
	assert.True(t, rootHandle(t, sink, "w2").Ended())
	assert.Equal(t, 0, registry.Len())
}

func TestTraceRegistryDuplicateTraceStart(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 3)

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))
	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "other"}))

	assert.Equal(t, 1, registry.Len())
	assert.Len(t, sink.Spans(), 1)
}

func TestTraceRegistryIdempotentSpanClose(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 3)

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))
	registry.StartSpan("t1", "s1", "", &tracing.FunctionSpanData{Name: "fn"})

	span := functionSpan("t1", "s1", "", "fn", "in", "out")
	require.NoError(t, registry.EndSpan("t1", "s1", span))
	require.NoError(t, registry.EndSpan("t1", "s1", span))

	// Exactly one log and one end reached the sink.
	ended := sink.EndedSpans()
	require.Len(t, ended, 1)
	assert.Len(t, ended[0].Logs(), 1)
	assert.Len(t, sink.EndOrder(), 1)
}

func TestTraceRegistryOrphanEvents(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 3)

	// Events for traces never started are dropped without error.
	registry.StartSpan("nope", "s1", "", &tracing.CustomSpanData{Name: "x"})
	require.NoError(t, registry.EndSpan("nope", "s1", customSpan("nope", "s1", "", "x")))
	require.NoError(t, registry.EndTrace("nope"))
	assert.Empty(t, sink.Spans())

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))

	// A span whose parent is unknown is dropped.
	registry.StartSpan("t1", "s1", "ghost", &tracing.CustomSpanData{Name: "x"})
	assert.Len(t, sink.Spans(), 1)

	// Ending a span that never started is a no-op.
	require.NoError(t, registry.EndSpan("t1", "s1", customSpan("t1", "s1", "", "x")))
	assert.Empty(t, sink.EndedSpans())

	// A duplicate span start is dropped.
	registry.StartSpan("t1", "s2", "", &tracing.CustomSpanData{Name: "a"})
	registry.StartSpan("t1", "s2", "", &tracing.CustomSpanData{Name: "b"})
	assert.Len(t, sink.Spans(), 2)
}

func TestTraceRegistryEndTraceForceClosesChildren(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 3)

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))
	registry.StartSpan("t1", "s1", "", &tracing.AgentSpanData{Name: "agent"})
	registry.StartSpan("t1", "s2", "s1", &tracing.FunctionSpanData{Name: "fn"})

	require.NoError(t, registry.EndTrace("t1"))
	assert.Equal(t, 0, registry.Len())

	// Every span was closed, and the still-open children were ended
	// without any payload.
	endOrder := sink.EndOrder()
	require.Len(t, endOrder, 3)
	assert.Same(t, rootHandle(t, sink, "w1"), endOrder[2])
	for _, h := range endOrder[:2] {
		assert.Empty(t, h.Logs())
	}

	// The late span end arrives after its trace ended: nothing happens.
	require.NoError(t, registry.EndSpan("t1", "s2", functionSpan("t1", "s2", "s1", "fn", "in", "out")))
	assert.Len(t, sink.EndOrder(), 3)
}

func TestTraceRegistryAggregation(t *testing.T) {
	t.Run("first input and last output win", func(t *testing.T) {
		sink := logsink.NewMemorySink()
		registry := newTestRegistry(t, sink, 3)

		require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))
		for i := 1; i <= 3; i++ {
			spanID := fmt.Sprintf("s%d", i)
			registry.StartSpan("t1", spanID, "", &tracing.FunctionSpanData{Name: "fn"})
			require.NoError(t, registry.EndSpan("t1", spanID,
				functionSpan("t1", spanID, "", "fn", fmt.Sprintf("I%d", i), fmt.Sprintf("O%d", i))))
		}
		require.NoError(t, registry.EndTrace("t1"))

		merged := rootHandle(t, sink, "w1").MergedFields()
		assert.Equal(t, "I1", merged.Input)
		assert.Equal(t, "O3", merged.Output)
	})

	t.Run("empty input still claims the slot", func(t *testing.T) {
		sink := logsink.NewMemorySink()
		registry := newTestRegistry(t, sink, 3)

		require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))

		// A span kind with no input/output does not touch the aggregates.
		registry.StartSpan("t1", "s1", "", &tracing.CustomSpanData{Name: "c"})
		require.NoError(t, registry.EndSpan("t1", "s1", customSpan("t1", "s1", "", "c")))

		// An empty function input is still a defined value.
		registry.StartSpan("t1", "s2", "", &tracing.FunctionSpanData{Name: "fn"})
		require.NoError(t, registry.EndSpan("t1", "s2", functionSpan("t1", "s2", "", "fn", "", nil)))

		registry.StartSpan("t1", "s3", "", &tracing.FunctionSpanData{Name: "fn"})
		require.NoError(t, registry.EndSpan("t1", "s3", functionSpan("t1", "s3", "", "fn", "late", "O3")))

		require.NoError(t, registry.EndTrace("t1"))

		merged := rootHandle(t, sink, "w1").MergedFields()
		assert.Equal(t, "", merged.Input)
		assert.Equal(t, "O3", merged.Output)
	})
}

func TestTraceRegistryTraceMetadata(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 3)

	require.NoError(t, registry.StartTrace(TraceInfo{
		TraceID:  "t1",
		Name:     "w1",
		GroupID:  "group_1",
		Metadata: map[string]any{"env": "ci"},
	}))
	require.NoError(t, registry.EndTrace("t1"))

	merged := rootHandle(t, sink, "w1").MergedFields()
	assert.Equal(t, map[string]any{"env": "ci", "group_id": "group_1"}, merged.Metadata)
}

func TestTraceRegistryConcurrentEvents(t *testing.T) {
	sink := logsink.NewMemorySink()
	registry := newTestRegistry(t, sink, 8)

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spanID := fmt.Sprintf("s%d", i)
			registry.StartSpan("t1", spanID, "", &tracing.FunctionSpanData{Name: "fn"})
			_ = registry.EndSpan("t1", spanID,
				functionSpan("t1", spanID, "", "fn", "in", "out"))
		}(i)
	}

	// End the trace while span events are still in flight.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = registry.EndTrace("t1")
	}()
	wg.Wait()

	assert.Equal(t, 0, registry.Len())

	// No sink span was ended twice.
	seen := make(map[*logsink.MemoryHandle]bool)
	for _, h := range sink.EndOrder() {
		assert.False(t, seen[h])
		seen[h] = true
	}
}

func TestTraceRegistrySinkErrors(t *testing.T) {
	endErr := errors.New("end failed")
	flushErr := errors.New("flush failed")
	shutdownErr := errors.New("shutdown failed")

	sink := logsink.NewMemorySink()
	sink.EndErr = endErr
	sink.FlushErr = flushErr
	sink.ShutdownErr = shutdownErr
	registry := newTestRegistry(t, sink, 3)

	require.NoError(t, registry.StartTrace(TraceInfo{TraceID: "t1", Name: "w1"}))
	registry.StartSpan("t1", "s1", "", &tracing.FunctionSpanData{Name: "fn"})

	// The sink failure propagates, but the span is gone from the
	// registry nonetheless.
	span := functionSpan("t1", "s1", "", "fn", "in", "out")
	assert.ErrorIs(t, registry.EndSpan("t1", "s1", span), endErr)
	require.NoError(t, registry.EndSpan("t1", "s1", span))

	assert.ErrorIs(t, registry.EndTrace("t1"), endErr)
	assert.Equal(t, 0, registry.Len())

	assert.ErrorIs(t, registry.ForceFlush(t.Context()), flushErr)
	assert.ErrorIs(t, registry.Shutdown(t.Context()), shutdownErr)
}
