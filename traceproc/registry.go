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

// Package traceproc turns asynchronous, possibly out-of-order trace and
// span callbacks into hierarchical spans on a logging sink, keeping the
// number of simultaneously tracked traces bounded.
package traceproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nlpodyssey/agent-tracelog-go/logsink"
	"github.com/nlpodyssey/agent-tracelog-go/tracing"
)

// DefaultMaxTraces is the default bound on simultaneously tracked traces.
const DefaultMaxTraces = 2000

// TraceInfo describes a starting trace.
type TraceInfo struct {
	TraceID  string
	Name     string
	GroupID  string
	Metadata map[string]any
}

// traceState is the bookkeeping for one live trace: the root sink span,
// the open child spans keyed by span ID, and the input/output aggregates
// folded from ended children.
type traceState struct {
	root     logsink.Handle
	children map[string]logsink.Handle

	// firstInput keeps the first defined input seen on an ended child,
	// lastOutput the most recent defined output. Defined means a non-nil
	// value, so an empty string still wins the first-input slot.
	firstInput any
	hasInput   bool
	lastOutput any
	hasOutput  bool

	// Set right before the state is removed on a normal trace end, so
	// the eviction callback can tell removal apart from overflow.
	closing bool
}

// TraceRegistry tracks live traces and writes their spans to a sink.
//
// All operations tolerate out-of-order and duplicated callbacks: events
// for unknown traces or spans are silently dropped, and a span is closed
// at most once. When more than maxTraces traces are open at the same
// time, the oldest one is abandoned without flushing anything.
type TraceRegistry struct {
	mu     sync.Mutex
	sink   logsink.Sink
	traces *lru.Cache[string, *traceState]
}

// NewTraceRegistry returns a registry that tracks at most maxTraces
// traces at a time. maxTraces must be at least 1.
func NewTraceRegistry(sink logsink.Sink, maxTraces int) (*TraceRegistry, error) {
	r := &TraceRegistry{sink: sink}

	// The cache is used strictly as a FIFO: entries are read with Peek
	// only, so recency order stays equal to insertion order and the
	// evicted entry is always the oldest open trace.
	traces, err := lru.NewWithEvict(maxTraces, r.onEvict)
	if err != nil {
		return nil, err
	}
	r.traces = traces
	return r, nil
}

func (r *TraceRegistry) onEvict(traceID string, st *traceState) {
	if st.closing {
		return
	}
	// The abandoned trace's sink spans are never logged, ended or
	// flushed; the sink holds no record of them.
	tracing.Logger().Debug("trace registry full, abandoning oldest trace",
		slog.String("traceID", traceID))
}

// StartTrace begins tracking a trace and opens its root sink span.
// A duplicate trace ID is dropped. If tracking the new trace overflows
// the bound, the oldest open trace is abandoned first.
func (r *TraceRegistry) StartTrace(info TraceInfo) error {
	name := info.Name
	if name == "" {
		name = "Agent workflow"
	}

	r.mu.Lock()
	if r.traces.Contains(info.TraceID) {
		r.mu.Unlock()
		tracing.Logger().Warn("trace already started, dropping duplicate",
			slog.String("traceID", info.TraceID))
		return nil
	}

	root := r.sink.StartSpan(name, "trace", nil)
	r.traces.Add(info.TraceID, &traceState{
		root:     root,
		children: make(map[string]logsink.Handle),
	})
	r.mu.Unlock()

	metadata := info.Metadata
	if info.GroupID != "" {
		metadata = make(map[string]any, len(info.Metadata)+1)
		for k, v := range info.Metadata {
			metadata[k] = v
		}
		metadata["group_id"] = info.GroupID
	}
	if metadata == nil {
		return nil
	}
	return root.Log(logsink.Fields{Metadata: metadata})
}

// StartSpan opens a sink span under a tracked trace. Events whose trace
// is unknown, whose span ID is already open, or whose parent span is
// unknown are dropped.
func (r *TraceRegistry) StartSpan(traceID, spanID, parentID string, data tracing.SpanData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.traces.Peek(traceID)
	if !ok {
		tracing.Logger().Debug("span start for unknown trace, dropping",
			slog.String("traceID", traceID), slog.String("spanID", spanID))
		return
	}

	if _, ok := st.children[spanID]; ok {
		tracing.Logger().Debug("span already started, dropping duplicate",
			slog.String("spanID", spanID))
		return
	}

	parent := st.root
	if parentID != "" {
		parent, ok = st.children[parentID]
		if !ok {
			tracing.Logger().Debug("span start with unknown parent, dropping",
				slog.String("spanID", spanID), slog.String("parentID", parentID))
			return
		}
	}

	st.children[spanID] = r.sink.StartSpan(spanName(data), spanType(data), parent)
}

// EndSpan closes an open span: its payload is logged on its sink span
// and the sink span is ended. Events whose trace or span is unknown, or
// whose span was already closed, are no-ops. The sink span is released
// from the registry before any sink error can surface, so a failing
// sink never leaks registry entries.
func (r *TraceRegistry) EndSpan(traceID, spanID string, span tracing.Span) error {
	r.mu.Lock()
	st, ok := r.traces.Peek(traceID)
	if !ok {
		r.mu.Unlock()
		return nil
	}

	h, ok := st.children[spanID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(st.children, spanID)

	rec := Extract(span)
	if rec.Input != nil && !st.hasInput {
		st.firstInput = rec.Input
		st.hasInput = true
	}
	if rec.Output != nil {
		st.lastOutput = rec.Output
		st.hasOutput = true
	}
	r.mu.Unlock()

	fields := logsink.Fields{
		Input:    rec.Input,
		Output:   rec.Output,
		Metadata: rec.Metadata,
		Metrics:  rec.Metrics,
		Error:    rec.Error,
	}

	var logErr error
	if !fields.IsZero() {
		logErr = h.Log(fields)
	}
	return errors.Join(logErr, h.End())
}

// EndTrace stops tracking a trace: any children still open are
// force-closed without payload extraction, the aggregated first input
// and last output are logged on the root span, and the root span is
// ended. An unknown trace ID is a no-op. All bookkeeping completes
// before sink errors can surface.
func (r *TraceRegistry) EndTrace(traceID string) error {
	r.mu.Lock()
	st, ok := r.traces.Peek(traceID)
	if !ok {
		r.mu.Unlock()
		return nil
	}
	st.closing = true
	r.traces.Remove(traceID)
	r.mu.Unlock()

	var errs []error
	for _, h := range st.children {
		errs = append(errs, h.End())
	}

	fields := logsink.Fields{}
	if st.hasInput {
		fields.Input = st.firstInput
	}
	if st.hasOutput {
		fields.Output = st.lastOutput
	}
	if !fields.IsZero() {
		errs = append(errs, st.root.Log(fields))
	}
	errs = append(errs, st.root.End())

	return errors.Join(errs...)
}

// Len returns the number of currently tracked traces.
func (r *TraceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.traces.Len()
}

// ForceFlush flushes the underlying sink.
func (r *TraceRegistry) ForceFlush(ctx context.Context) error {
	return r.sink.ForceFlush(ctx)
}

// Shutdown shuts down the underlying sink.
func (r *TraceRegistry) Shutdown(ctx context.Context) error {
	return r.sink.Shutdown(ctx)
}
