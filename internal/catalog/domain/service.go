package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	ListItems(ctx context.Context, req ListItemsRequest) ([]ItemResponse, error)
	GetItem(ctx context.Context, id string) (*ItemResponse, error)
	CreateItem(ctx context.Context, req CreateItemRequest) (*ItemResponse, error)
	UpdateItem(ctx context.Context, id string, req UpdateItemRequest) (*ItemResponse, error)
	SetActive(ctx context.Context, id string, active bool) (*ItemResponse, error)
	DeleteItem(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]string, error)

	ListCategoryOrders(ctx context.Context) ([]CategoryOrderResponse, error)
	CreateCategoryOrder(ctx context.Context, req CategoryOrderRequest) (*CategoryOrderResponse, error)
	UpdateCategoryOrder(ctx context.Context, id string, req CategoryOrderRequest) (*CategoryOrderResponse, error)
	DeleteCategoryOrder(ctx context.Context, id string) error
}

type ListItemsRequest struct {
	Query           string
	Category        string
	IncludeInactive bool
}

type CreateItemRequest struct {
	SKU          int64           `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	ImageURL     string          `json:"image_url"`
	Active       *bool           `json:"active"`
	StockInitial int             `json:"stock_initial"`
}

// UpdateItemRequest is a partial update; nil fields are left untouched.
type UpdateItemRequest struct {
	SKU          *int64           `json:"sku"`
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Price        *decimal.Decimal `json:"price"`
	Category     *string          `json:"category"`
	ImageURL     *string          `json:"image_url"`
	Active       *bool            `json:"active"`
	StockInitial *int             `json:"stock_initial"`
	SoldCount    *int             `json:"sold_count"`
}

type ItemResponse struct {
	ID           string          `json:"id"`
	SKU          int64           `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	ImageURL     string          `json:"image_url"`
	Active       bool            `json:"active"`
	StockInitial int             `json:"stock_initial"`
	SoldCount    int             `json:"sold_count"`
	Available    int             `json:"available"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CategoryOrderRequest struct {
	Name     string `json:"name"`
	Position *int   `json:"position"`
}

type CategoryOrderResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Position int    `json:"position"`
}

var (
	ErrNotFound      = errors.New("not_found")
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidSKU    = errors.New("invalid_sku")
	ErrDuplicateSKU  = errors.New("duplicate_sku")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidPrice  = errors.New("invalid_price")
	ErrInvalidStock  = errors.New("invalid_stock")
	ErrDuplicateName = errors.New("duplicate_category")
)
