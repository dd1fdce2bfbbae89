package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
)

func (s *Server) ListItems(c *gin.Context) {
	all, err := parseOptionalBool(c.Query("all"))
	if err != nil {
		AbortWithError(c, newValidationError("all", "invalid_all", "invalid all"))
		return
	}

	items, err := s.catalogSvc.ListItems(c.Request.Context(), catalogdomain.ListItemsRequest{
		Query:           strings.TrimSpace(c.Query("q")),
		Category:        strings.TrimSpace(c.Query("category")),
		IncludeInactive: all != nil && *all,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

func (s *Server) GetItem(c *gin.Context) {
	item, err := s.catalogSvc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) CreateItem(c *gin.Context) {
	var req catalogdomain.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.catalogSvc.CreateItem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (s *Server) UpdateItem(c *gin.Context) {
	var req catalogdomain.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.catalogSvc.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) DeleteItem(c *gin.Context) {
	if err := s.catalogSvc.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type toggleActiveRequest struct {
	ID     flexibleID `json:"id"`
	Active *bool      `json:"active"`
	Ativo  *bool      `json:"ativo"`
}

// ToggleItemActive sets the active flag of the item named in the body.
// A missing flag deactivates.
func (s *Server) ToggleItemActive(c *gin.Context) {
	var req toggleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	active := false
	switch {
	case req.Active != nil:
		active = *req.Active
	case req.Ativo != nil:
		active = *req.Ativo
	}

	item, err := s.catalogSvc.SetActive(c.Request.Context(), req.ID.String(), active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// UpdateItemByBody is the partial update addressed by an id in the body.
func (s *Server) UpdateItemByBody(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var target struct {
		ID flexibleID `json:"id"`
	}
	if err := json.Unmarshal(raw, &target); err != nil || target.ID == "" {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}
	var req catalogdomain.UpdateItemRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.catalogSvc.UpdateItem(c.Request.Context(), target.ID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) ListCategories(c *gin.Context) {
	categories, err := s.catalogSvc.Categories(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, categories)
}

func (s *Server) ListCategoryOrders(c *gin.Context) {
	entries, err := s.catalogSvc.ListCategoryOrders(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (s *Server) CreateCategoryOrder(c *gin.Context) {
	var req catalogdomain.CategoryOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.catalogSvc.CreateCategoryOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (s *Server) UpdateCategoryOrder(c *gin.Context) {
	var req catalogdomain.CategoryOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.catalogSvc.UpdateCategoryOrder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (s *Server) DeleteCategoryOrder(c *gin.Context) {
	if err := s.catalogSvc.DeleteCategoryOrder(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
