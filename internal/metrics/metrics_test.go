package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestScansTotal(t *testing.T) {
	before := testutil.ToFloat64(ScansTotal.WithLabelValues("invalid", "signature_invalid"))
	ScansTotal.WithLabelValues("invalid", "signature_invalid").Inc()
	after := testutil.ToFloat64(ScansTotal.WithLabelValues("invalid", "signature_invalid"))
	assert.Equal(t, before+1, after)
}

func TestObserveRequest(t *testing.T) {
	ObserveRequest(http.MethodPost, "", http.StatusOK, 5*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(RequestDuration, "gate_http_request_duration_seconds"), 1)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/api/v1/tickets/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.CollectAndCount(RequestDuration, "gate_http_request_duration_seconds")
	for _, id := range []string{"abc", "def", "ghi"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tickets/"+id, nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	}

	// one series per route template, not per concrete path
	after := testutil.CollectAndCount(RequestDuration, "gate_http_request_duration_seconds")
	assert.Equal(t, before+1, after)
}
