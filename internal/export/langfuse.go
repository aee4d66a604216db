package export

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/trace"
)

// LangfuseSink ships spans to the Langfuse batch ingestion API as
// observation events, authenticated with the project's public/secret
// key pair.
type LangfuseSink struct {
	service string
	client  *resty.Client
}

// NewLangfuseSink creates a sink for the given Langfuse host
// (e.g. https://cloud.langfuse.com).
func NewLangfuseSink(host, publicKey, secretKey, service string) *LangfuseSink {
	client := resty.New().
		SetBaseURL(host).
		SetBasicAuth(publicKey, secretKey).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	return &LangfuseSink{
		service: service,
		client:  client,
	}
}

// Name identifies the sink in logs and metrics.
func (s *LangfuseSink) Name() string { return "langfuse" }

type langfuseEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Body      map[string]any `json:"body"`
}

type langfuseBatch struct {
	Batch    []langfuseEvent `json:"batch"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Export sends one batch of span-create events. The ingestion API is
// multi-status; any non-2xx response fails the whole batch.
func (s *LangfuseSink) Export(ctx context.Context, spans []*trace.Span) error {
	events := make([]langfuseEvent, 0, len(spans))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	for _, sp := range spans {
		body := map[string]any{
			"id":        sp.SpanID,
			"traceId":   sp.TraceID,
			"name":      sp.Name,
			"startTime": sp.StartTime.UTC().Format(time.RFC3339Nano),
			"endTime":   sp.EndTime.UTC().Format(time.RFC3339Nano),
			"metadata":  sp.Attributes,
		}
		if sp.ParentID != "" {
			body["parentObservationId"] = sp.ParentID
		}
		if sp.Status == trace.StatusError {
			body["level"] = "ERROR"
			body["statusMessage"] = sp.StatusMessage
		}

		events = append(events, langfuseEvent{
			ID:        uuid.NewString(),
			Type:      "span-create",
			Timestamp: now,
			Body:      body,
		})
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(langfuseBatch{
			Batch:    events,
			Metadata: map[string]any{"service": s.service},
		}).
		Post("/api/public/ingestion")
	if err != nil {
		return fmt.Errorf("post langfuse batch: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("langfuse ingestion returned status %d", resp.StatusCode())
	}
	return nil
}
