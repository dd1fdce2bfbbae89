package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	dashboarddomain "github.com/smallbiznis/banca/internal/dashboard/domain"
	"go.uber.org/zap"
)

func (s *Server) Login(c *gin.Context) {
	var req dashboarddomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserAgent = c.Request.UserAgent()
	req.IPAddress = c.ClientIP()

	res, err := s.dashboardSvc.Login(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Logout succeeds even without a token so the dashboard can always clear its state.
func (s *Server) Logout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		if err := s.dashboardSvc.Logout(c.Request.Context(), token); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, dashboarddomain.ToUserResponse(user))
}

func (s *Server) ListRoutes(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"routes":  dashboarddomain.KnownRoutes,
		"allowed": dashboarddomain.ToUserResponse(user).AllowedRoutes,
	})
}

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.dashboardSvc.ListUsers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) CreateUser(c *gin.Context) {
	var req dashboarddomain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.dashboardSvc.CreateUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (s *Server) UpdateUser(c *gin.Context) {
	var req dashboarddomain.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.dashboardSvc.UpdateUser(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *Server) DeleteUser(c *gin.Context) {
	if current := currentUser(c); current != nil && formatInt(current.ID) == c.Param("id") {
		AbortWithError(c, newValidationError("id", "cannot_delete_self", "cannot delete the current user"))
		return
	}

	if err := s.dashboardSvc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetMetrics(c *gin.Context) {
	summary, err := s.reports.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetMetricsHistory(c *gin.Context) {
	days, err := parseOptionalInt(c.Query("days"))
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "invalid days"))
		return
	}

	history, err := s.reports.History(c.Request.Context(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": history})
}

func (s *Server) ResetSales(c *gin.Context) {
	res, err := s.reports.ResetSales(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if user := currentUser(c); user != nil {
		s.log.Warn("sales reset requested", zap.String("username", user.Username))
	}
	c.JSON(http.StatusOK, res)
}

func formatInt(id int64) string {
	return strconv.FormatInt(id, 10)
}
