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

// Package tracingtesting provides helpers for testing code that emits traces.
package tracingtesting

import (
	"context"
	"testing"

	"github.com/nlpodyssey/agent-tracelog-go/tracing"
)

func Setup(t *testing.T) {
	SetupCtx(t, t.Context())
}

func SetupCtx(t *testing.T, ctx context.Context) {
	t.Helper()
	SetupSpanProcessor()
	ClearSpanProcessor(t, ctx)

	t.Cleanup(func() {
		ShutdownTraceProvider(ctx)
	})
}

func SetupSpanProcessor() {
	tracing.SetTraceProcessors([]tracing.Processor{SpanProcessorTesting()})
}

func ClearSpanProcessor(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := SpanProcessorTesting().ForceFlush(ctx); err != nil {
		t.Fatal(err)
	}
	if err := SpanProcessorTesting().Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	SpanProcessorTesting().Clear()
}

func ShutdownTraceProvider(ctx context.Context) {
	tracing.GetTraceProvider().Shutdown(ctx)
}
