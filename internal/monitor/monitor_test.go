package monitor

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test")

	m.RecordTransition("shipped", "vendor", nil)
	m.RecordTransition("shipped", "vendor", nil)
	m.RecordTransition("cancelled", "vendor", errors.New("forbidden"))
	m.RecordBadgeAward("first_sale")
	m.RecordTicket("message", "linked")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderTransitionTotal.WithLabelValues("shipped", "vendor", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderTransitionTotal.WithLabelValues("cancelled", "vendor", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.badgeAwardTotal.WithLabelValues("first_sale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketTotal.WithLabelValues("message", "linked")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")
	a.RecordOrderPlaced(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.orderPlacedTotal.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.orderPlacedTotal.WithLabelValues("ok")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOrderPlaced(nil)
		m.RecordTransition("shipped", "admin", nil)
		m.RecordTransitionRetry()
		m.RecordMessage("append", nil)
		m.RecordRecompute(time.Second, nil)
		m.UpdateDBStats(sql.DBStats{})
		m.UpdateSystemMetrics()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("market")
	m.RecordHTTPRequest("GET", "/api/v1/ping", "200", 5*time.Millisecond)
	m.UpdateDBStats(sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `market_http_requests_total{method="GET",path="/api/v1/ping",status="200"} 1`))
	assert.True(t, strings.Contains(body, "market_db_connections_open 4"))
}

func TestMetrics_SystemCollectionStops(t *testing.T) {
	m := NewMetrics("test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.StartSystemMetricsCollection(ctx, 5*time.Millisecond, func() sql.DBStats {
			return sql.DBStats{Idle: 2}
		})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collection did not stop")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dbConnectionsIdle))
	assert.Greater(t, testutil.ToFloat64(m.goroutineCount), 0.0)
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), "fulfillment.transition")
	assert.NotEmpty(t, TraceID(ctx))
	EndSpan(span, errors.New("conflict"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "fulfillment.transition", spans[0].Name())
	assert.Equal(t, "conflict", spans[0].Status().Description)
}

func TestDisabledTracer(t *testing.T) {
	tr, err := NewTracer(DefaultTracerConfig())
	require.NoError(t, err)
	assert.NoError(t, tr.Shutdown(context.Background()))
	assert.Empty(t, TraceID(context.Background()))
}
