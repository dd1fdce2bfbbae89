package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	dashboarddomain "github.com/smallbiznis/banca/internal/dashboard/domain"
	obscontext "github.com/smallbiznis/banca/internal/observability/context"
	"github.com/smallbiznis/banca/internal/ratelimit"
)

const (
	contextUserKey = "dashboard_user"
	actorTypeUser  = "dashboard_user"
)

// AuthRequired resolves the bearer token to an active dashboard user.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.dashboardSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		ctx := obscontext.WithActor(c.Request.Context(), actorTypeUser, user.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRoutes admits users holding any of the given route keys.
func (s *Server) RequireRoutes(routes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !user.Allows(routes...) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// RateLimit throttles per client IP when redis is configured.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, endpoint, c.ClientIP())
		if errors.Is(err, ratelimit.ErrRateLimited) {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)
			if res != nil && res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *dashboarddomain.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*dashboarddomain.User)
	return user
}

// bearerToken accepts "Bearer <token>" and the "Token <token>" form older
// dashboard builds send.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return strings.TrimSpace(token)
	default:
		return ""
	}
}
