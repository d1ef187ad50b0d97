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
	"testing"

	"github.com/nlpodyssey/agent-tracelog-go/tracing"
	"github.com/openai/openai-go/v3/responses"
	"github.com/stretchr/testify/assert"
)

func spanWithData(data tracing.SpanData) tracing.Span {
	return tracing.NewSpanImpl("trace_123", "span_123", "", nil, data)
}

func TestExtractAgentSpan(t *testing.T) {
	rec := Extract(spanWithData(&tracing.AgentSpanData{
		Name:     "support_agent",
		Handoffs: []string{"billing_agent"},
		Tools:    []string{"lookup"},
	}))

	assert.Equal(t, "support_agent", rec.Name)
	assert.Equal(t, "agent", rec.SpanType)
	assert.Nil(t, rec.Input)
	assert.Nil(t, rec.Output)
	assert.Equal(t, map[string]any{
		"handoffs": []string{"billing_agent"},
		"tools":    []string{"lookup"},
	}, rec.Metadata)
}

func TestExtractFunctionSpan(t *testing.T) {
	rec := Extract(spanWithData(&tracing.FunctionSpanData{
		Name:   "get_weather",
		Input:  `{"city":"Turin"}`,
		Output: "sunny",
	}))

	assert.Equal(t, "get_weather", rec.Name)
	assert.Equal(t, "function", rec.SpanType)
	assert.Equal(t, `{"city":"Turin"}`, rec.Input)
	assert.Equal(t, "sunny", rec.Output)

	// An empty function input is still a defined input.
	rec = Extract(spanWithData(&tracing.FunctionSpanData{Name: "noop"}))
	assert.Equal(t, "", rec.Input)
	assert.Nil(t, rec.Output)
}

func TestExtractGenerationSpan(t *testing.T) {
	rec := Extract(spanWithData(&tracing.GenerationSpanData{
		Input:  []map[string]any{{"role": "user", "content": "hi"}},
		Output: []map[string]any{{"role": "assistant", "content": "hello"}},
		Model:  "gpt-4.1",
		Usage: map[string]any{
			"input_tokens":  10,
			"output_tokens": 5,
			"total_tokens":  float64(15),
		},
	}))

	assert.Equal(t, "Generation (gpt-4.1)", rec.Name)
	assert.Equal(t, "generation", rec.SpanType)
	assert.NotNil(t, rec.Input)
	assert.NotNil(t, rec.Output)
	assert.Equal(t, map[string]any{"model": "gpt-4.1"}, rec.Metadata)
	assert.Equal(t, map[string]float64{
		"input_tokens":  10,
		"output_tokens": 5,
		"total_tokens":  15,
	}, rec.Metrics)

	rec = Extract(spanWithData(&tracing.GenerationSpanData{}))
	assert.Equal(t, "Generation", rec.Name)
	assert.Nil(t, rec.Input)
	assert.Nil(t, rec.Metrics)
}

func TestExtractResponseSpan(t *testing.T) {
	rec := Extract(spanWithData(&tracing.ResponseSpanData{
		Response: &responses.Response{
			ID:    "resp_123",
			Model: "gpt-4.1",
			Usage: responses.ResponseUsage{
				InputTokens:  10,
				OutputTokens: 5,
				TotalTokens:  15,
			},
		},
		Input: "hi",
	}))

	assert.Equal(t, "Response", rec.Name)
	assert.Equal(t, "response", rec.SpanType)
	assert.Equal(t, "hi", rec.Input)
	assert.Equal(t, map[string]any{
		"response_id": "resp_123",
		"model":       "gpt-4.1",
	}, rec.Metadata)
	assert.Equal(t, map[string]float64{
		"input_tokens":  10,
		"output_tokens": 5,
		"total_tokens":  15,
	}, rec.Metrics)

	// Without a response object there is nothing to project.
	rec = Extract(spanWithData(&tracing.ResponseSpanData{}))
	assert.Nil(t, rec.Input)
	assert.Nil(t, rec.Output)
	assert.Nil(t, rec.Metadata)
}

func TestExtractHandoffSpan(t *testing.T) {
	rec := Extract(spanWithData(&tracing.HandoffSpanData{
		FromAgent: "triage",
		ToAgent:   "billing",
	}))

	assert.Equal(t, "Handoff (triage -> billing)", rec.Name)
	assert.Equal(t, "handoff", rec.SpanType)
	assert.Equal(t, map[string]any{
		"from_agent": "triage",
		"to_agent":   "billing",
	}, rec.Metadata)
}

func TestExtractGuardrailSpan(t *testing.T) {
	rec := Extract(spanWithData(&tracing.GuardrailSpanData{
		Name:      "toxicity",
		Triggered: true,
	}))

	assert.Equal(t, "toxicity", rec.Name)
	assert.Equal(t, "guardrail", rec.SpanType)
	assert.Equal(t, map[string]any{"triggered": true}, rec.Metadata)
}

func TestExtractCustomSpanAndError(t *testing.T) {
	span := spanWithData(&tracing.CustomSpanData{
		Name: "db_query",
		Data: map[string]any{"rows": 3},
	})
	span.SetError(tracing.SpanError{Message: "timeout"})

	rec := Extract(span)
	assert.Equal(t, "db_query", rec.Name)
	assert.Equal(t, "custom", rec.SpanType)
	assert.Equal(t, map[string]any{"rows": 3}, rec.Metadata)
	assert.Equal(t, "timeout", rec.Error.Message)
}
