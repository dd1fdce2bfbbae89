package logger

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/banca/internal/observability/context"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// Routes logged at debug, including the long-lived dashboard stream.
var quietRoutes = map[string]bool{
	"/healthz":           true,
	"/metrics":           true,
	"/api/orders/events": true,
}

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps a handler error to (error_type, error_code).
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns the request id and writes one http_request line per
// request once the handler chain is done. Mercado Pago sends x-request-id on
// notifications, so webhook lines share the id used in its signature.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if topic := firstQuery(c, "type", "topic"); topic != "" && strings.HasSuffix(route, "/webhook") {
			fields = append(fields, zap.String("topic", topic))
		}

		if last := c.Errors.Last(); last != nil {
			errorType, errorCode := "internal", ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		if orderID, ok := routeOrderID(c, route); ok {
			log = WithOrder(log, orderID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		case status == http.StatusTooManyRequests:
			log.Warn("http_request", fields...)
		case quietRoutes[route]:
			log.Debug("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// routeOrderID reads the order id from /api/orders/:id/... and /api/payments/:order_id.
func routeOrderID(c *gin.Context, route string) (int64, bool) {
	raw := c.Param("order_id")
	if raw == "" && strings.HasPrefix(route, "/api/orders/:id") {
		raw = c.Param("id")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}
