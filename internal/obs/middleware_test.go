package obs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRoutePatternContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, RoutePatternFromContext(ctx))

	ctx = WithRoutePattern(ctx, "/items/{sku}")
	require.Equal(t, "/items/{sku}", RoutePatternFromContext(ctx))
}

func TestRouteOfUsesMatchedChiPattern(t *testing.T) {
	var route string
	r := chi.NewRouter()
	r.Get("/items/{sku}", func(w http.ResponseWriter, req *http.Request) {
		route = routeOf(req)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/DRILL", nil))
	require.Equal(t, "/items/{sku}", route)
}

func TestStatusRecorderCapturesStatusAndBytes(t *testing.T) {
	rec := NewStatusRecorder(httptest.NewRecorder())
	require.Equal(t, http.StatusOK, rec.Status())

	rec.WriteHeader(http.StatusNotFound)
	n, err := rec.Write([]byte("missing"))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, http.StatusNotFound, rec.Status())
	require.Equal(t, int64(7), rec.BytesWritten())
}

func TestTracingMiddlewareRecordsServerError(t *testing.T) {
	sr := newSpanRecorder(t)

	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /healthz", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)

	status, ok := attrValue(spans[0].Attributes(), "http.status_code")
	require.True(t, ok)
	require.Equal(t, int64(http.StatusInternalServerError), status.AsInt64())
}

func TestPGXTracerNamesSpanBySQLVerb(t *testing.T) {
	sr := newSpanRecorder(t)
	tracer := PGXTracer{}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "SELECT id, sku FROM items WHERE sku = $1",
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("SELECT 1"),
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "sql.select", spans[0].Name())

	rows, ok := attrValue(spans[0].Attributes(), "db.rows_affected")
	require.True(t, ok)
	require.Equal(t, int64(1), rows.AsInt64())
}

func TestPGXTracerRecordsQueryError(t *testing.T) {
	sr := newSpanRecorder(t)
	tracer := PGXTracer{}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "UPDATE items SET quantity = quantity - 1",
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		Err: errors.New("connection reset"),
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "sql.update", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestClipStatementBoundsLongQueries(t *testing.T) {
	short := "SELECT 1"
	require.Equal(t, short, clipStatement(short))

	long := "SELECT " + strings.Repeat("col, ", 100) + "id FROM items"
	clipped := clipStatement(long)
	require.Len(t, clipped, 203)
	require.True(t, strings.HasSuffix(clipped, "..."))
}
