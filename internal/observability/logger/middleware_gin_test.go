package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/banca/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var seen string
	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{}))
	router.GET("/api/orders/:id", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/10", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/api/orders/:id", fields["route"])
		assert.Equal(t, int64(10), fields["order_id"])
	}
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{}))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "provider_error", "provider_unavailable" },
	}))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/payments/webhook", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/payments/:order_id", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusBadGateway)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodPost, "/api/payments/webhook?topic=Payment&id=77", nil),
		httptest.NewRequest(http.MethodGet, "/api/payments/55", nil),
	} {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zap.DebugLevel, entries[0].Level)

		assert.Equal(t, zap.InfoLevel, entries[1].Level)
		assert.Equal(t, "payment", entries[1].ContextMap()["topic"])

		assert.Equal(t, zap.ErrorLevel, entries[2].Level)
		fields := entries[2].ContextMap()
		assert.Equal(t, int64(55), fields["order_id"])
		assert.Equal(t, "provider_error", fields["error_type"])
	}
}
