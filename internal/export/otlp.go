package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"

	"github.com/nimbuslabs/nimbus/internal/trace"
)

// OTLPSink ships span batches to an OTLP/HTTP traces endpoint
// (e.g. http://localhost:4318/v1/traces) as gzip-compressed JSON.
type OTLPSink struct {
	endpoint string
	service  string
	headers  map[string]string
	client   *retryablehttp.Client
}

// NewOTLPSink creates a sink for the given traces endpoint. The service
// name becomes the service.name resource attribute on every batch.
// Static headers (e.g. collector credentials) are sent on every request.
func NewOTLPSink(endpoint, service string, headers map[string]string) *OTLPSink {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &OTLPSink{
		endpoint: endpoint,
		service:  service,
		headers:  headers,
		client:   client,
	}
}

// Name identifies the sink in logs and metrics.
func (s *OTLPSink) Name() string { return "otlp" }

// Export serializes and POSTs one span batch. A non-2xx status after the
// client's bounded retries is a failed batch.
func (s *OTLPSink) Export(ctx context.Context, spans []*trace.Span) error {
	payload, err := json.Marshal(s.buildRequest(spans))
	if err != nil {
		return fmt.Errorf("encode otlp payload: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return fmt.Errorf("compress otlp payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress otlp payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", s.endpoint, buf.Bytes())
	if err != nil {
		return fmt.Errorf("build otlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post otlp batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("otlp endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// OTLP/JSON shapes. Trace and span ids are hex strings and timestamps are
// decimal-string nanoseconds, per the OTLP JSON encoding.
type otlpRequest struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

type otlpResourceSpans struct {
	Resource   otlpResource     `json:"resource"`
	ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
}

type otlpResource struct {
	Attributes []otlpKeyValue `json:"attributes"`
}

type otlpScopeSpans struct {
	Scope otlpScope  `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type otlpScope struct {
	Name string `json:"name"`
}

type otlpSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano string         `json:"startTimeUnixNano"`
	EndTimeUnixNano   string         `json:"endTimeUnixNano"`
	Attributes        []otlpKeyValue `json:"attributes,omitempty"`
	Status            otlpStatus     `json:"status"`
}

type otlpStatus struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type otlpKeyValue struct {
	Key   string       `json:"key"`
	Value otlpAnyValue `json:"value"`
}

type otlpAnyValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

const spanKindServer = 2

func (s *OTLPSink) buildRequest(spans []*trace.Span) otlpRequest {
	out := make([]otlpSpan, 0, len(spans))
	for _, sp := range spans {
		out = append(out, otlpSpan{
			TraceID:           sp.TraceID,
			SpanID:            sp.SpanID,
			ParentSpanID:      sp.ParentID,
			Name:              sp.Name,
			Kind:              spanKindServer,
			StartTimeUnixNano: strconv.FormatInt(sp.StartTime.UnixNano(), 10),
			EndTimeUnixNano:   strconv.FormatInt(sp.EndTime.UnixNano(), 10),
			Attributes:        toOTLPAttributes(sp.Attributes),
			Status:            toOTLPStatus(sp),
		})
	}

	serviceName := s.service
	return otlpRequest{
		ResourceSpans: []otlpResourceSpans{{
			Resource: otlpResource{
				Attributes: []otlpKeyValue{{
					Key:   "service.name",
					Value: otlpAnyValue{StringValue: &serviceName},
				}},
			},
			ScopeSpans: []otlpScopeSpans{{
				Scope: otlpScope{Name: "nimbus"},
				Spans: out,
			}},
		}},
	}
}

func toOTLPStatus(sp *trace.Span) otlpStatus {
	switch sp.Status {
	case trace.StatusOK:
		return otlpStatus{Code: 1}
	case trace.StatusError:
		return otlpStatus{Code: 2, Message: sp.StatusMessage}
	default:
		return otlpStatus{}
	}
}

func toOTLPAttributes(attrs map[string]any) []otlpKeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]otlpKeyValue, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, otlpKeyValue{Key: k, Value: toOTLPValue(v)})
	}
	return out
}

func toOTLPValue(v any) otlpAnyValue {
	switch val := v.(type) {
	case string:
		return otlpAnyValue{StringValue: &val}
	case bool:
		return otlpAnyValue{BoolValue: &val}
	case float32:
		f := float64(val)
		return otlpAnyValue{DoubleValue: &f}
	case float64:
		return otlpAnyValue{DoubleValue: &val}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i := fmt.Sprint(val)
		return otlpAnyValue{IntValue: &i}
	default:
		s := fmt.Sprint(val)
		return otlpAnyValue{StringValue: &s}
	}
}
