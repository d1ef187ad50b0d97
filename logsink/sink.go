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

// Package logsink defines the logging backend that span records are
// written to, along with in-memory, console and HTTP implementations.
package logsink

import (
	"context"

	"github.com/nlpodyssey/agent-tracelog-go/tracing"
)

// Fields is the structured payload attached to a sink span.
//
// Input and Output are considered set when they are non-nil interface
// values. An empty string or a zero number stored in them still counts
// as set; only a nil interface means absent.
type Fields struct {
	Input    any
	Output   any
	Metadata map[string]any
	Metrics  map[string]float64
	Error    *tracing.SpanError
}

// IsZero reports whether no field carries a value.
func (f Fields) IsZero() bool {
	return f.Input == nil && f.Output == nil && f.Metadata == nil &&
		f.Metrics == nil && f.Error == nil
}

// Handle is a live span on the sink.
//
// Log attaches structured fields to the span. End closes the span and
// releases the resources the sink holds for it. A Handle must be ended
// exactly once; the sink owns no record of spans that were started but
// never ended.
type Handle interface {
	Log(fields Fields) error
	End() error
	Export() map[string]any
}

// Sink is a hierarchical logging backend.
//
// StartSpan opens a span, optionally under a parent handle previously
// returned by the same sink. A nil parent starts a root span.
type Sink interface {
	StartSpan(name, spanType string, parent Handle) Handle
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
