package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareAndEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/check-ins/history/:challengeId", func(c *gin.Context) {
		_, span := Tracer.Start(c.Request.Context(), "checkin.history")
		EndSpan(span, errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/check-ins/history/c1", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	inner, server := spans[0], spans[1]
	assert.Equal(t, "checkin.history", inner.Name())
	assert.Equal(t, codes.Error, inner.Status().Code)
	assert.Equal(t, server.SpanContext().TraceID(), inner.SpanContext().TraceID())

	assert.Equal(t, "GET /api/check-ins/history/:challengeId", server.Name())
	assert.Equal(t, codes.Error, server.Status().Code)
}
