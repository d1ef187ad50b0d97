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

package logsink

import (
	"context"
	"slices"
	"sync"
)

// MemorySink is a Sink that keeps every span in memory.
// This is concurrency-safe and suitable for tests or basic usage.
type MemorySink struct {
	mu       sync.RWMutex
	spans    []*MemoryHandle
	endOrder []*MemoryHandle

	// Optional errors returned by the corresponding operations,
	// to exercise failure paths in tests.
	LogErr      error
	EndErr      error
	FlushErr    error
	ShutdownErr error

	flushCalls    int
	shutdownCalls int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

type MemoryHandle struct {
	mu       sync.RWMutex
	sink     *MemorySink
	Name     string
	SpanType string
	Parent   *MemoryHandle
	logs     []Fields
	ended    bool
}

func (s *MemorySink) StartSpan(name, spanType string, parent Handle) Handle {
	h := &MemoryHandle{
		sink:     s,
		Name:     name,
		SpanType: spanType,
	}
	if parent != nil {
		h.Parent = parent.(*MemoryHandle)
	}

	s.mu.Lock()
	s.spans = append(s.spans, h)
	s.mu.Unlock()

	return h
}

func (s *MemorySink) ForceFlush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushCalls += 1
	return s.FlushErr
}

func (s *MemorySink) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCalls += 1
	return s.ShutdownErr
}

// Spans returns all spans ever started, in start order.
func (s *MemorySink) Spans() []*MemoryHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.spans)
}

// OpenSpans returns the spans that were started but not yet ended.
func (s *MemorySink) OpenSpans() []*MemoryHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []*MemoryHandle
	for _, h := range s.spans {
		if !h.Ended() {
			open = append(open, h)
		}
	}
	return open
}

// EndOrder returns the ended spans in the order they were ended.
func (s *MemorySink) EndOrder() []*MemoryHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.endOrder)
}

// EndedSpans returns the spans that were ended, in start order.
func (s *MemorySink) EndedSpans() []*MemoryHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ended []*MemoryHandle
	for _, h := range s.spans {
		if h.Ended() {
			ended = append(ended, h)
		}
	}
	return ended
}

func (s *MemorySink) FlushCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flushCalls
}

func (s *MemorySink) ShutdownCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownCalls
}

func (s *MemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = nil
	s.endOrder = nil
	s.flushCalls = 0
	s.shutdownCalls = 0
}

func (h *MemoryHandle) Log(fields Fields) error {
	h.mu.Lock()
	h.logs = append(h.logs, fields)
	h.mu.Unlock()
	return h.sink.LogErr
}

func (h *MemoryHandle) End() error {
	h.mu.Lock()
	h.ended = true
	h.mu.Unlock()

	h.sink.mu.Lock()
	h.sink.endOrder = append(h.sink.endOrder, h)
	h.sink.mu.Unlock()
	return h.sink.EndErr
}

func (h *MemoryHandle) Ended() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ended
}

// Logs returns all field payloads logged on this span, in order.
func (h *MemoryHandle) Logs() []Fields {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.logs)
}

// MergedFields folds all logged payloads into one, later entries
// overwriting earlier ones field by field.
func (h *MemoryHandle) MergedFields() Fields {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mergedFieldsLocked()
}

func (h *MemoryHandle) mergedFieldsLocked() Fields {
	var merged Fields
	for _, f := range h.logs {
		if f.Input != nil {
			merged.Input = f.Input
		}
		if f.Output != nil {
			merged.Output = f.Output
		}
		if f.Metadata != nil {
			merged.Metadata = f.Metadata
		}
		if f.Metrics != nil {
			merged.Metrics = f.Metrics
		}
		if f.Error != nil {
			merged.Error = f.Error
		}
	}
	return merged
}

func (h *MemoryHandle) Export() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := map[string]any{
		"name": h.Name,
		"type": h.SpanType,
	}
	if h.Parent != nil {
		out["parent_name"] = h.Parent.Name
	}

	merged := h.mergedFieldsLocked()
	if merged.Input != nil {
		out["input"] = merged.Input
	}
	if merged.Output != nil {
		out["output"] = merged.Output
	}
	if merged.Metadata != nil {
		out["metadata"] = merged.Metadata
	}
	if merged.Metrics != nil {
		out["metrics"] = merged.Metrics
	}
	if merged.Error != nil {
		out["error"] = merged.Error.Export()
	}
	return out
}
