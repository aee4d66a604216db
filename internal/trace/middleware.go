package trace

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nimbuslabs/nimbus/internal/shared/id"
)

// RequestIDHeader carries the server-assigned request id back to clients.
const RequestIDHeader = "X-Request-Id"

// Middleware creates Gin middleware that opens a request-level span.
//
// The carrier is read from the incoming traceparent/tracestate headers;
// a missing or malformed carrier degrades to a fresh root trace. The span
// is closed and submitted after the handler chain completes, even when
// the client has already disconnected.
func Middleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		carrier := map[string]string{
			TraceParentHeader: c.GetHeader(TraceParentHeader),
			TraceStateHeader:  c.GetHeader(TraceStateHeader),
		}
		parent := Extract(carrier)

		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}
		span := tracer.StartSpan(parent, c.Request.Method+" "+name)

		requestID := id.NewRequestID()
		span.SetAttribute("http.method", c.Request.Method)
		span.SetAttribute("http.target", c.Request.URL.Path)
		span.SetAttribute("request.id", requestID.String())
		if parent.State != "" {
			span.SetAttribute("trace.state", parent.State)
		}

		c.Request = c.Request.WithContext(ContextWithSpan(c.Request.Context(), span))
		c.Header(RequestIDHeader, requestID.String())

		c.Next()

		status := c.Writer.Status()
		span.SetAttribute("http.status_code", strconv.Itoa(status))
		if status >= 500 {
			span.SetStatus(StatusError, "http status "+strconv.Itoa(status))
		} else if span.Snapshot().Status == StatusUnset {
			span.SetStatus(StatusOK, "")
		}
		if len(c.Errors) > 0 {
			span.SetStatus(StatusError, c.Errors.Last().Error())
		}

		span.End()
	}
}
