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
	"fmt"

	"github.com/nlpodyssey/agent-tracelog-go/tracing"
)

// Record is the projection of an ended span into sink terms.
//
// Input and Output are nil when the span kind carries no such value.
// A present-but-empty value (e.g. a function that returned "") is kept
// as a non-nil interface so the sink can tell it apart from absent.
type Record struct {
	Name     string
	SpanType string
	Input    any
	Output   any
	Metadata map[string]any
	Metrics  map[string]float64
	Error    *tracing.SpanError
}

// Extract projects a span payload into a Record. It is total: every
// span kind yields a valid Record, unknown kinds yield a Record with
// just the name and type filled in.
func Extract(span tracing.Span) Record {
	rec := Record{
		Name:     spanName(span.SpanData()),
		SpanType: spanType(span.SpanData()),
		Error:    span.Error(),
	}

	switch data := span.SpanData().(type) {
	case *tracing.AgentSpanData:
		metadata := make(map[string]any)
		if len(data.Handoffs) > 0 {
			metadata["handoffs"] = data.Handoffs
		}
		if len(data.Tools) > 0 {
			metadata["tools"] = data.Tools
		}
		if data.OutputType != "" {
			metadata["output_type"] = data.OutputType
		}
		if len(metadata) > 0 {
			rec.Metadata = metadata
		}

	case *tracing.FunctionSpanData:
		rec.Input = data.Input
		rec.Output = data.Output
		if data.MCPData != nil {
			rec.Metadata = map[string]any{"mcp_data": data.MCPData}
		}

	case *tracing.GenerationSpanData:
		if data.Input != nil {
			rec.Input = data.Input
		}
		if data.Output != nil {
			rec.Output = data.Output
		}

		metadata := make(map[string]any)
		if data.Model != "" {
			metadata["model"] = data.Model
		}
		if data.ModelConfig != nil {
			metadata["model_configuration"] = data.ModelConfig
		}
		if len(metadata) > 0 {
			rec.Metadata = metadata
		}
		rec.Metrics = usageMetrics(data.Usage)

	case *tracing.ResponseSpanData:
		if data.Input != nil {
			rec.Input = data.Input
		}
		if data.Response != nil {
			rec.Output = data.Response.Output

			metadata := map[string]any{"response_id": data.Response.ID}
			if data.Model != "" {
				metadata["model"] = data.Model
			} else if data.Response.Model != "" {
				metadata["model"] = string(data.Response.Model)
			}
			rec.Metadata = metadata

			usage := data.Response.Usage
			if usage.TotalTokens > 0 {
				rec.Metrics = map[string]float64{
					"input_tokens":  float64(usage.InputTokens),
					"output_tokens": float64(usage.OutputTokens),
					"total_tokens":  float64(usage.TotalTokens),
				}
			}
		}

	case *tracing.HandoffSpanData:
		rec.Metadata = map[string]any{
			"from_agent": data.FromAgent,
			"to_agent":   data.ToAgent,
		}

	case *tracing.GuardrailSpanData:
		rec.Metadata = map[string]any{"triggered": data.Triggered}

	case *tracing.CustomSpanData:
		if data.Data != nil {
			rec.Metadata = data.Data
		}

	default:
	}

	return rec
}

func spanName(spanData tracing.SpanData) string {
	switch data := spanData.(type) {
	case *tracing.AgentSpanData:
		return data.Name
	case *tracing.FunctionSpanData:
		return data.Name
	case *tracing.GenerationSpanData:
		if data.Model != "" {
			return fmt.Sprintf("Generation (%s)", data.Model)
		}
		return "Generation"
	case *tracing.ResponseSpanData:
		return "Response"
	case *tracing.HandoffSpanData:
		return fmt.Sprintf("Handoff (%s -> %s)", data.FromAgent, data.ToAgent)
	case *tracing.GuardrailSpanData:
		return data.Name
	case *tracing.CustomSpanData:
		return data.Name
	default:
		if spanData != nil {
			return spanData.Type()
		}
		return "Unknown"
	}
}

func spanType(spanData tracing.SpanData) string {
	if spanData != nil {
		return spanData.Type()
	}
	return "unknown"
}

// usageMetrics converts a generation usage dictionary to numeric
// metrics, tolerating both int and float values.
func usageMetrics(usage map[string]any) map[string]float64 {
	if len(usage) == 0 {
		return nil
	}

	metrics := make(map[string]float64)
	for _, key := range []string{"input_tokens", "output_tokens", "total_tokens", "prompt_tokens", "completion_tokens"} {
		switch v := usage[key].(type) {
		case int:
			metrics[key] = float64(v)
		case int64:
			metrics[key] = float64(v)
		case float64:
			metrics[key] = v
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	return metrics
}
