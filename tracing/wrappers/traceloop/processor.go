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

// Package traceloop forwards traces to Traceloop.
package traceloop

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/nlpodyssey/agent-tracelog-go/traceproc"
	"github.com/nlpodyssey/agent-tracelog-go/tracing"
	sdk "github.com/traceloop/go-openllmetry/traceloop-sdk"
)

// TracingProcessor implements tracing.Processor to send traces to Traceloop
type TracingProcessor struct {
	client *sdk.Traceloop

	// Track workflows and tasks for parent-child relationships
	workflows map[string]*sdk.Workflow
	tasks     map[string]*sdk.Task
	llmSpans  map[string]*sdk.LLMSpan
	mu        sync.RWMutex
}

// ProcessorParams configuration for the Traceloop processor
type ProcessorParams struct {
	// Traceloop API key. Required - pass from main
	APIKey string
	// Traceloop Base URL. Defaults to api.traceloop.com
	BaseURL string
}

// NewTracingProcessor creates a new Traceloop tracing processor
func NewTracingProcessor(ctx context.Context, params ProcessorParams) (*TracingProcessor, error) {
	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = "api.traceloop.com"
	}

	client, err := sdk.NewClient(ctx, sdk.Config{
		BaseURL: baseURL,
		APIKey:  params.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Traceloop client: %w", err)
	}

	return &TracingProcessor{
		client:    client,
		workflows: make(map[string]*sdk.Workflow),
		tasks:     make(map[string]*sdk.Task),
		llmSpans:  make(map[string]*sdk.LLMSpan),
	}, nil
}

// OnTraceStart implements tracing.Processor
func (p *TracingProcessor) OnTraceStart(ctx context.Context, trace tracing.Trace) error {
	if p.client == nil {
		fmt.Fprintf(os.Stderr, "Traceloop client not initialized, skipping trace export\n")
		return nil
	}

	workflowName := trace.Name()
	if workflowName == "" {
		workflowName = "Agent workflow"
	}

	attrs := sdk.WorkflowAttributes{
		Name: workflowName,
	}
	workflow := p.client.NewWorkflow(ctx, attrs)

	p.mu.Lock()
	p.workflows[trace.TraceID()] = workflow
	p.mu.Unlock()

	return nil
}

// OnTraceEnd implements tracing.Processor
func (p *TracingProcessor) OnTraceEnd(ctx context.Context, trace tracing.Trace) error {
	if p.client == nil {
		return nil
	}

	p.mu.Lock()
	workflow, exists := p.workflows[trace.TraceID()]
	if exists {
		delete(p.workflows, trace.TraceID())
	}
	p.mu.Unlock()

	if exists && workflow != nil {
		workflow.End()
	}

	return nil
}

// OnSpanStart implements tracing.Processor
func (p *TracingProcessor) OnSpanStart(ctx context.Context, span tracing.Span) error {
	if p.client == nil {
		return nil
	}

	// Find parent workflow
	p.mu.RLock()
	workflow := p.workflows[span.TraceID()]
	p.mu.RUnlock()

	if workflow == nil {
		fmt.Fprintf(os.Stderr, "No workflow found for span, skipping: %s\n", span.SpanID())
		return nil
	}

	task := workflow.NewTask(taskName(span))

	p.mu.Lock()
	p.tasks[span.SpanID()] = task
	p.mu.Unlock()

	// For LLM spans (generation/response), start logging the prompt
	if isLLMSpan(span) {
		prompt := extractPrompt(span)
		if prompt != nil {
			llmSpan, err := task.LogPrompt(*prompt)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to log prompt: %v\n", err)
				return err
			}

			p.mu.Lock()
			p.llmSpans[span.SpanID()] = &llmSpan
			p.mu.Unlock()
		}
	}

	return nil
}

// OnSpanEnd implements tracing.Processor
func (p *TracingProcessor) OnSpanEnd(ctx context.Context, span tracing.Span) error {
	if p.client == nil {
		return nil
	}

	p.mu.Lock()
	task, taskExists := p.tasks[span.SpanID()]
	llmSpan, llmExists := p.llmSpans[span.SpanID()]
	if taskExists {
		delete(p.tasks, span.SpanID())
	}
	if llmExists {
		delete(p.llmSpans, span.SpanID())
	}
	p.mu.Unlock()

	// Log completion for LLM spans
	if llmExists && llmSpan != nil && isLLMSpan(span) {
		completion := extractCompletion(span)
		if completion != nil {
			llmSpan.LogCompletion(ctx, *completion, extractUsage(span))
		}
	}

	if taskExists && task != nil {
		task.End()
	}

	return nil
}

// Shutdown implements tracing.Processor
func (p *TracingProcessor) Shutdown(ctx context.Context) error {
	if p.client != nil {
		p.client.Shutdown(ctx)
	}
	return nil
}

// ForceFlush implements tracing.Processor
func (p *TracingProcessor) ForceFlush(ctx context.Context) error {
	// Traceloop SDK handles flushing internally
	return nil
}

// Helper functions

func taskName(span tracing.Span) string {
	rec := traceproc.Extract(span)
	return fmt.Sprintf("%s_%s", rec.SpanType, rec.Name)
}

func isLLMSpan(span tracing.Span) bool {
	switch span.SpanData().(type) {
	case *tracing.GenerationSpanData, *tracing.ResponseSpanData:
		return true
	default:
		return false
	}
}

func extractPrompt(span tracing.Span) *sdk.Prompt {
	switch data := span.SpanData().(type) {
	case *tracing.GenerationSpanData:
		prompt := &sdk.Prompt{
			Vendor: "openai",
			Mode:   "chat",
			Model:  data.Model,
		}
		if data.Input != nil {
			prompt.Messages = convertMessages(data.Input)
		}
		return prompt

	case *tracing.ResponseSpanData:
		prompt := &sdk.Prompt{
			Vendor: "openai",
			Mode:   "chat",
			Model:  data.Model,
		}
		if inputSlice, ok := data.Input.([]map[string]any); ok {
			prompt.Messages = convertMessages(inputSlice)
		}
		return prompt
	}

	return nil
}

func extractCompletion(span tracing.Span) *sdk.Completion {
	switch data := span.SpanData().(type) {
	case *tracing.GenerationSpanData:
		completion := &sdk.Completion{Model: data.Model}
		if data.Output != nil {
			completion.Messages = convertMessages(data.Output)
		}
		return completion

	case *tracing.ResponseSpanData:
		if data.Response == nil {
			return nil
		}
		return &sdk.Completion{
			Model: string(data.Response.Model),
			Messages: []sdk.Message{
				{
					Index:   0,
					Content: fmt.Sprintf("Response ID: %s", data.Response.ID),
					Role:    "assistant",
				},
			},
		}
	}

	return nil
}

func extractUsage(span tracing.Span) sdk.Usage {
	metrics := traceproc.Extract(span).Metrics
	if metrics == nil {
		return sdk.Usage{}
	}

	usage := sdk.Usage{
		TotalTokens:      int(metrics["total_tokens"]),
		PromptTokens:     int(metrics["prompt_tokens"]),
		CompletionTokens: int(metrics["completion_tokens"]),
	}
	if usage.PromptTokens == 0 {
		usage.PromptTokens = int(metrics["input_tokens"])
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = int(metrics["output_tokens"])
	}
	return usage
}

func convertMessages(input []map[string]any) []sdk.Message {
	messages := make([]sdk.Message, len(input))
	for i, msg := range input {
		content := ""
		role := "user"

		if c, ok := msg["content"].(string); ok {
			content = c
		}
		if r, ok := msg["role"].(string); ok {
			role = r
		}

		messages[i] = sdk.Message{
			Index:   i,
			Content: content,
			Role:    role,
		}
	}
	return messages
}
