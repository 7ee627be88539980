// Package trace opens one OpenTelemetry server span per HTTP request.
package trace

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "conti/internal/http"

// Middleware handles request tracing
type Middleware struct {
	tracer    oteltrace.Tracer
	extractIP func(*http.Request) string

	total  atomic.Int64
	failed atomic.Int64
}

// Metrics counts traced requests.
type Metrics struct {
	TotalRequests  int64
	ServerFailures int64
}

// NewMiddleware traces with the global tracer provider, which is a no-op
// unless the host process installs one.
func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return NewMiddlewareWithProvider(otel.GetTracerProvider(), extractIP)
}

func NewMiddlewareWithProvider(tp oteltrace.TracerProvider, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{tracer: tp.Tracer(tracerName), extractIP: extractIP}
}

// Middleware returns HTTP middleware for request tracing. The span is named
// after the matched chi route once routing is done.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		}
		if m.extractIP != nil {
			attrs = append(attrs, attribute.String("client.address", m.extractIP(r)))
		}
		if id := chimw.GetReqID(r.Context()); id != "" {
			attrs = append(attrs, attribute.String("http.request.id", id))
		}

		ctx, span := m.tracer.Start(r.Context(), r.Method,
			oteltrace.WithSpanKind(oteltrace.SpanKindServer),
			oteltrace.WithAttributes(attrs...))
		defer span.End()

		m.total.Add(1)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
		span.SetAttributes(attribute.Int("http.response.status_code", rw.statusCode))
		if rw.statusCode >= http.StatusInternalServerError {
			m.failed.Add(1)
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:  m.total.Load(),
		ServerFailures: m.failed.Load(),
	}
}
