package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/banca/internal/statuslog"
	"github.com/smallbiznis/banca/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*OrderResponse, error)
	Get(ctx context.Context, id string) (*OrderResponse, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	// UpdateStatus applies a staff transition. The actor is read from ctx.
	UpdateStatus(ctx context.Context, id string, to string) (*StatusChange, error)
	Status(ctx context.Context, id string) (*StatusResponse, error)
	History(ctx context.Context, id string) ([]statuslog.Entry, error)
	Load(ctx context.Context, id string) (*Order, error)
}

// Settlement moves an order to paid inside the caller's transaction. order
// must have been read under a row lock in tx. paid_at is stamped only when
// unset and inventory is committed only on that first stamp.
type Settlement interface {
	ApplyPaid(ctx context.Context, tx *gorm.DB, order *Order) error
}

type LineRequest struct {
	SKU int64 `json:"sku"`
	Qty int   `json:"qty"`
}

type CreateRequest struct {
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	Items           []LineRequest `json:"items"`
	PaymentMethod   string        `json:"payment_method"`
	Note            string        `json:"note"`
	PackagingNeeded bool          `json:"packaging_needed"`
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type LineResponse struct {
	SKU      int64           `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Qty      int             `json:"qty"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID                string          `json:"id"`
	CustomerName      string          `json:"customer_name"`
	CustomerPhone     string          `json:"customer_phone,omitempty"`
	Total             decimal.Decimal `json:"total"`
	Status            string          `json:"status"`
	PaymentMethod     string          `json:"payment_method"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	PaymentLink       string          `json:"payment_link,omitempty"`
	Note              string          `json:"note,omitempty"`
	PackagingNeeded   bool            `json:"packaging_needed"`
	Items             []LineResponse  `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
}

type ListResponse struct {
	Orders   []OrderResponse     `json:"orders"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type StatusChange struct {
	OK   bool   `json:"ok"`
	From string `json:"from"`
	To   string `json:"to"`
}

type StatusResponse struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
}
