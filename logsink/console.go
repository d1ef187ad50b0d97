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
	"fmt"
	"sync"
)

// ConsoleSink is a Sink that prints spans to the console.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

type consoleHandle struct {
	mu       sync.Mutex
	name     string
	spanType string
	parent   *consoleHandle
	fields   Fields
}

func (*ConsoleSink) StartSpan(name, spanType string, parent Handle) Handle {
	h := &consoleHandle{name: name, spanType: spanType}
	if parent != nil {
		h.parent = parent.(*consoleHandle)
	}
	fmt.Printf("[Sink] Start span name=%s, type=%s\n", name, spanType)
	return h
}

func (*ConsoleSink) ForceFlush(context.Context) error {
	return nil
}

func (*ConsoleSink) Shutdown(context.Context) error {
	return nil
}

func (h *consoleHandle) Log(fields Fields) error {
	h.mu.Lock()
	if fields.Input != nil {
		h.fields.Input = fields.Input
	}
	if fields.Output != nil {
		h.fields.Output = fields.Output
	}
	if fields.Metadata != nil {
		h.fields.Metadata = fields.Metadata
	}
	if fields.Metrics != nil {
		h.fields.Metrics = fields.Metrics
	}
	if fields.Error != nil {
		h.fields.Error = fields.Error
	}
	h.mu.Unlock()
	return nil
}

func (h *consoleHandle) End() error {
	fmt.Printf("[Sink] End span: %+v\n", h.Export())
	return nil
}

func (h *consoleHandle) Export() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := map[string]any{
		"name": h.name,
		"type": h.spanType,
	}
	if h.parent != nil {
		out["parent_name"] = h.parent.name
	}
	if h.fields.Input != nil {
		out["input"] = h.fields.Input
	}
	if h.fields.Output != nil {
		out["output"] = h.fields.Output
	}
	if h.fields.Metadata != nil {
		out["metadata"] = h.fields.Metadata
	}
	if h.fields.Metrics != nil {
		out["metrics"] = h.fields.Metrics
	}
	if h.fields.Error != nil {
		out["error"] = h.fields.Error.Export()
	}
	return out
}
