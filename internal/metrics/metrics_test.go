package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSettlement(t *testing.T) {
	before := testutil.ToFloat64(settlements.WithLabelValues("payment", "success"))
	RecordSettlement("payment", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(settlements.WithLabelValues("payment", "success")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	router.GET("/jobs/:id/receipt", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/12/receipt", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/jobs/:id/receipt", "204")), 1.0)
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordSettlement("deposit", "rejected")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_settlement_operations_total")
}
