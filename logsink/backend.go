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
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nlpodyssey/agent-tracelog-go/asyncqueue"
	"github.com/nlpodyssey/agent-tracelog-go/tracing"
	"github.com/openai/openai-go/v3/packages/param"
)

const DefaultBackendSinkEndpoint = "https://api.openai.com/v1/traces/ingest"

// BackendSink is a Sink that posts ended spans to an HTTP ingestion
// endpoint in batches. Spans are buffered in memory until ended, then
// queued for a background worker.
type BackendSink struct {
	apiKey       atomic.Pointer[string]
	organization string
	project      string
	Endpoint     string
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	client       *http.Client

	queue         *asyncqueue.Queue[map[string]any]
	maxQueueSize  int
	maxBatchSize  int
	scheduleDelay time.Duration
	// The queue size threshold at which we export immediately.
	exportTriggerSize int
	// Track when we next *must* perform a scheduled export.
	nextExportTime time.Time

	shutdownCalled atomic.Bool
	workerRunning  atomic.Bool
	workerDoneChan chan struct{}
	workerMu       sync.Mutex
}

type BackendSinkParams struct {
	// The API key for the "Authorization" header.
	// Defaults to OPENAI_API_KEY environment variable if not provided.
	APIKey string
	// The OpenAI organization to use.
	// Defaults to OPENAI_ORG_ID environment variable if not provided.
	Organization string
	// The OpenAI project to use.
	// Defaults to OPENAI_PROJECT_ID environment variable if not provided.
	Project string
	// The HTTP endpoint to which ended spans are posted.
	// Defaults to DefaultBackendSinkEndpoint if not provided.
	Endpoint string
	// Maximum number of retries upon failures.
	// Default: 3.
	MaxRetries param.Opt[int]
	// Base delay for the first backoff.
	// Default: 1 second.
	BaseDelay param.Opt[time.Duration]
	// Maximum delay for backoff growth.
	// Default: 30 seconds.
	MaxDelay param.Opt[time.Duration]
	// The maximum number of ended spans to keep queued.
	// After this, we will start dropping spans.
	// Default: 8192.
	MaxQueueSize param.Opt[int]
	// The maximum number of spans to post in a single batch.
	// Default: 128.
	MaxBatchSize param.Opt[int]
	// The delay between checks for new spans to export.
	// Default: 5 seconds.
	ScheduleDelay param.Opt[time.Duration]
	// The ratio of the queue size at which we will trigger an export.
	// Default: 0.7.
	ExportTriggerRatio param.Opt[float64]
	// Optional custom http.Client.
	HTTPClient *http.Client
}

func NewBackendSink(params BackendSinkParams) *BackendSink {
	maxQueueSize := params.MaxQueueSize.Or(8192)
	scheduleDelay := params.ScheduleDelay.Or(5 * time.Second)
	exportTriggerRatio := params.ExportTriggerRatio.Or(0.7)

	b := &BackendSink{
		organization:      params.Organization,
		project:           params.Project,
		Endpoint:          cmp.Or(params.Endpoint, DefaultBackendSinkEndpoint),
		MaxRetries:        params.MaxRetries.Or(3),
		BaseDelay:         params.BaseDelay.Or(1 * time.Second),
		MaxDelay:          params.MaxDelay.Or(30 * time.Second),
		client:            cmp.Or(params.HTTPClient, &http.Client{Timeout: 60 * time.Second}),
		queue:             asyncqueue.New[map[string]any](),
		maxQueueSize:      maxQueueSize,
		maxBatchSize:      params.MaxBatchSize.Or(128),
		scheduleDelay:     scheduleDelay,
		exportTriggerSize: max(1, int(float64(maxQueueSize)*exportTriggerRatio)),
		nextExportTime:    time.Now().Add(scheduleDelay),
	}
	if params.APIKey != "" {
		b.apiKey.Store(&params.APIKey)
	}
	return b
}

// SetAPIKey sets the API key for the sink.
func (b *BackendSink) SetAPIKey(apiKey string) {
	b.apiKey.Store(&apiKey)
}

func (b *BackendSink) APIKey() string {
	if v := b.apiKey.Load(); v != nil && *v != "" {
		return *v
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (b *BackendSink) Organization() string {
	if b.organization == "" {
		return os.Getenv("OPENAI_ORG_ID")
	}
	return b.organization
}

func (b *BackendSink) Project() string {
	if b.project == "" {
		return os.Getenv("OPENAI_PROJECT_ID")
	}
	return b.project
}

type backendHandle struct {
	mu       sync.Mutex
	sink     *BackendSink
	id       string
	parentID string
	name     string
	spanType string
	started  time.Time
	ended    time.Time
	fields   Fields
}

func (b *BackendSink) StartSpan(name, spanType string, parent Handle) Handle {
	h := &backendHandle{
		sink:     b,
		id:       "sinkspan_" + uuid.NewString(),
		name:     name,
		spanType: spanType,
		started:  time.Now(),
	}
	if parent != nil {
		h.parentID = parent.(*backendHandle).id
	}
	return h
}

// ForceFlush synchronously posts everything currently queued.
func (b *BackendSink) ForceFlush(ctx context.Context) error {
	return b.exportBatches(ctx, true)
}

// Shutdown is called when the application stops.
// We signal our worker goroutine to stop, then wait for its completion.
func (b *BackendSink) Shutdown(ctx context.Context) error {
	b.shutdownCalled.Store(true)

	// Only wait if we ever started the background worker; otherwise flush synchronously.
	if b.workerRunning.Load() {
		<-b.workerDoneChan
		b.client.CloseIdleConnections()
		return nil
	}

	// No background goroutine: process any remaining items synchronously.
	err := b.exportBatches(ctx, true)
	b.client.CloseIdleConnections()
	return err
}

func (h *backendHandle) Log(fields Fields) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ended.IsZero() {
		tracing.Logger().Warn("BackendSink: logging on an ended span, ignoring", slog.String("id", h.id))
		return nil
	}

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
	return nil
}

func (h *backendHandle) End() error {
	h.mu.Lock()
	if !h.ended.IsZero() {
		h.mu.Unlock()
		tracing.Logger().Warn("BackendSink: span already ended", slog.String("id", h.id))
		return nil
	}
	h.ended = time.Now()
	h.mu.Unlock()

	b := h.sink
	b.ensureWorkerStarted()

	if b.queue.Len() >= b.maxQueueSize {
		tracing.Logger().Warn("BackendSink: queue is full, dropping span.")
		return nil
	}
	b.queue.Put(h.Export())
	return nil
}

func (h *backendHandle) Export() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := map[string]any{
		"object":     "sink.span",
		"id":         h.id,
		"name":       h.name,
		"type":       h.spanType,
		"started_at": h.started.UTC().Format(time.RFC3339Nano),
	}
	if h.parentID != "" {
		out["parent_id"] = h.parentID
	}
	if !h.ended.IsZero() {
		out["ended_at"] = h.ended.UTC().Format(time.RFC3339Nano)
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

func (b *BackendSink) ensureWorkerStarted() {
	// Fast path without holding the lock.
	if b.workerRunning.Load() {
		return
	}

	b.workerMu.Lock()
	defer b.workerMu.Unlock()
	if b.workerRunning.Load() {
		return
	}

	b.workerDoneChan = make(chan struct{})
	b.workerRunning.Store(true)

	go func() {
		defer func() {
			b.workerMu.Lock()
			defer b.workerMu.Unlock()
			b.workerRunning.Store(false)
			close(b.workerDoneChan)
		}()

		err := b.run(context.Background())
		if err != nil {
			tracing.Logger().Error("BackendSink worker error", slog.String("error", err.Error()))
		}
	}()
}

func (b *BackendSink) run(ctx context.Context) error {
	for !b.shutdownCalled.Load() {
		currentTime := time.Now()
		queueSize := b.queue.Len()

		// If it's time for a scheduled flush or queue is above the trigger threshold
		if currentTime.After(b.nextExportTime) || queueSize >= b.exportTriggerSize {
			err := b.exportBatches(ctx, false)
			if err != nil {
				return err
			}
			// Reset the next scheduled flush time
			b.nextExportTime = time.Now().Add(b.scheduleDelay)
		} else {
			// Sleep a short interval so we don't busy-wait.
			time.Sleep(200 * time.Millisecond)
		}
	}

	// Final drain after shutdown
	return b.exportBatches(ctx, true)
}

// exportBatches drains the queue and posts in batches. If force=true, post everything.
// Otherwise, post up to maxBatchSize repeatedly until the queue is completely empty.
func (b *BackendSink) exportBatches(ctx context.Context, force bool) error {
	for {
		var itemsToExport []map[string]any
		for force || len(itemsToExport) < b.maxBatchSize {
			item, ok := b.queue.GetNoWait()
			if !ok {
				break
			}
			itemsToExport = append(itemsToExport, item)
		}

		// If we collected nothing, we're done
		if len(itemsToExport) == 0 {
			return nil
		}

		if err := b.export(ctx, itemsToExport); err != nil {
			return err
		}
	}
}

func (b *BackendSink) export(ctx context.Context, items []map[string]any) error {
	if len(items) == 0 {
		return nil
	}

	if b.APIKey() == "" {
		tracing.Logger().Warn("BackendSink: API key is not set, skipping span export")
		return nil
	}

	payload := map[string]any{
		"data": items,
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+b.APIKey())
	header.Set("Content-Type", "application/json")
	header.Set("OpenAI-Beta", "traces=v1")
	if b.Organization() != "" {
		header.Set("OpenAI-Organization", b.Organization())
	}
	if b.Project() != "" {
		header.Set("OpenAI-Project", b.Project())
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to JSON-marshal sink payload: %w", err)
	}

	// Exponential backoff loop
	attempt := 0
	delay := b.BaseDelay
	for {
		attempt += 1

		request, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(jsonPayload))
		if err != nil {
			return fmt.Errorf("failed to initialize new sink request: %w", err)
		}
		request.Header = header

		response, err := b.client.Do(request)

		if err != nil {
			tracing.Logger().Warn("[non-fatal] BackendSink: request failed", slog.String("error", err.Error()))
		} else {
			// If the response is successful, break out of the loop
			if response.StatusCode < 300 {
				_ = response.Body.Close()
				tracing.Logger().Debug(fmt.Sprintf("Exported %d spans", len(items)))
				return nil
			}

			// If the response is a client error (4xx), we won't retry
			if response.StatusCode >= 400 && response.StatusCode < 500 {
				body, err := io.ReadAll(response.Body)
				if err != nil {
					tracing.Logger().Warn("failed to read sink response body", slog.String("error", err.Error()))
				}
				_ = response.Body.Close()
				tracing.Logger().Warn(
					"[non-fatal] BackendSink client error",
					slog.Int("statusCode", response.StatusCode),
					slog.String("response", string(body)),
				)
				return nil
			}
			_ = response.Body.Close()

			// For 5xx or other unexpected codes, treat it as transient and retry
			tracing.Logger().Warn("[non-fatal] BackendSink: server error, retrying.", slog.Int("statusCode", response.StatusCode))
		}

		if attempt >= b.MaxRetries {
			return fmt.Errorf("BackendSink: max retries reached, giving up on a batch of %d spans", len(items))
		}

		// Exponential backoff + jitter
		sleepTime := delay + time.Duration(rand.Int64N(int64(delay/10))) // 10% jitter
		time.Sleep(sleepTime)
		delay = min(delay*2, b.MaxDelay)
	}
}
