package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("recipient_user_id", "456"),
		attribute.String("kind", "submitted"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("org_id"))
	assert.Contains(t, keys, attribute.Key("kind"))
}

func TestNoopMetricsAcceptRecords(t *testing.T) {
	m := NewNoop()
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordCodeAllocated(ctx, "1")
	m.RecordAllocationConflict(ctx, "1")
	m.RecordNotifications(ctx, "submitted", 3)
	m.RecordRealtimeDelivery(ctx, true)
	m.RecordEmailJob(ctx, "pending")

	var nilMetrics *Metrics
	nilMetrics.RecordEmailJob(ctx, "sent")
}

func TestHTTPMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "procura-test"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.requests.WithLabelValues("/ping", http.MethodGet, "204")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inflight))
}
