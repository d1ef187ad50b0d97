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

package tracingtesting

import (
	"cmp"
	"context"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/nlpodyssey/agent-tracelog-go/tracing"
)

type SpanProcessorEvent string

const (
	TraceStart SpanProcessorEvent = "trace_start"
	TraceEnd   SpanProcessorEvent = "trace_end"
	SpanStart  SpanProcessorEvent = "span_start"
	SpanEnd    SpanProcessorEvent = "span_end"
)

// SpanProcessorForTests is a simple processor that stores finished spans in memory.
// This is concurrency-safe and suitable for tests or basic usage.
type SpanProcessorForTests struct {
	mu     sync.RWMutex
	spans  []tracing.Span
	traces []tracing.Trace
	events []SpanProcessorEvent
}

func NewSpanProcessorForTests() *SpanProcessorForTests {
	return &SpanProcessorForTests{}
}

func (p *SpanProcessorForTests) OnTraceStart(_ context.Context, trace tracing.Trace) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.traces = append(p.traces, trace)
	p.events = append(p.events, TraceStart)

	return nil
}

func (p *SpanProcessorForTests) OnTraceEnd(context.Context, tracing.Trace) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// We don't append the trace here, we want to do that in OnTraceStart
	p.events = append(p.events, TraceEnd)

	return nil
}

func (p *SpanProcessorForTests) OnSpanStart(context.Context, tracing.Span) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Purposely not appending the span here, we want to do that in OnSpanEnd
	p.events = append(p.events, SpanStart)

	return nil
}

func (p *SpanProcessorForTests) OnSpanEnd(_ context.Context, span tracing.Span) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, SpanEnd)
	p.spans = append(p.spans, span)

	return nil
}

func (p *SpanProcessorForTests) Shutdown(context.Context) error {
	return nil
}

func (p *SpanProcessorForTests) ForceFlush(context.Context) error {
	return nil
}

func (p *SpanProcessorForTests) GetOrderedSpans(includingEmpty, sortSpansByID bool) []tracing.Span {
	p.mu.RLock()
	defer p.mu.RUnlock()

	spans := slices.Clone(p.spans)
	if !includingEmpty {
		spans = slices.DeleteFunc(spans, func(span tracing.Span) bool {
			return len(span.Export()) == 0
		})
	}

	if sortSpansByID {
		sort.Slice(spans, func(i, j int) bool {
			return cmp.Less(spans[i].SpanID(), spans[j].SpanID())
		})
	} else {
		sort.Slice(spans, func(i, j int) bool {
			return spans[i].StartedAt().Before(spans[j].StartedAt())
		})
	}

	return spans
}

func (p *SpanProcessorForTests) GetTraces(includingEmpty bool) []tracing.Trace {
	p.mu.RLock()
	defer p.mu.RUnlock()

	traces := slices.Clone(p.traces)
	if !includingEmpty {
		traces = slices.DeleteFunc(traces, func(trace tracing.Trace) bool {
			return len(trace.Export()) == 0
		})
	}

	return traces
}

func (p *SpanProcessorForTests) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.spans = nil
	p.traces = nil
	p.events = nil
}

var spanProcessorTesting = NewSpanProcessorForTests()

func SpanProcessorTesting() *SpanProcessorForTests {
	return spanProcessorTesting
}

func FetchOrderedSpans(sortSpansByID bool) []tracing.Span {
	return SpanProcessorTesting().GetOrderedSpans(false, sortSpansByID)
}

func FetchTraces() []tracing.Trace {
	return SpanProcessorTesting().GetTraces(false)
}

func FetchEvents() []SpanProcessorEvent {
	p := SpanProcessorTesting()

	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.events)
}

func RequireNoSpans(t *testing.T) {
	t.Helper()

	spans := FetchOrderedSpans(false)
	if len(spans) > 0 {
		t.Fatalf("expected 0 spans, got %d", len(spans))
	}
}

func RequireNoTraces(t *testing.T) {
	t.Helper()

	traces := FetchTraces()
	if len(traces) > 0 {
		t.Fatalf("expected 0 traces, got %d", len(traces))
	}

	RequireNoSpans(t)
}
