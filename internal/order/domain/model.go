package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusAwaitingPayment = "awaiting_payment"
	StatusPaid            = "paid"
	StatusPreparing       = "preparing"
	StatusProducing       = "producing"
	StatusReady           = "ready"
	StatusDone            = "done"
	StatusCancelled       = "cancelled"
)

var transitions = map[string][]string{
	StatusAwaitingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusPreparing, StatusProducing, StatusReady, StatusDone, StatusCancelled},
	StatusPreparing:       {StatusProducing, StatusReady, StatusDone, StatusCancelled},
	StatusProducing:       {StatusReady, StatusDone, StatusCancelled},
	StatusReady:           {StatusDone, StatusCancelled},
	StatusDone:            nil,
	StatusCancelled:       nil,
}

// ValidStatus reports whether status is a known order status.
func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to string) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID                int64           `gorm:"primaryKey"`
	CustomerName      string          `gorm:"type:text;not null;default:''"`
	CustomerPhone     string          `gorm:"type:text;not null;default:''"`
	Total             decimal.Decimal `gorm:"type:numeric(9,2);not null"`
	Status            string          `gorm:"type:text;not null;index"`
	PaymentMethod     string          `gorm:"type:text;not null;default:''"`
	ProviderPaymentID string          `gorm:"type:text;not null;default:''"`
	PaymentLink       string          `gorm:"type:text;not null;default:''"`
	Note              string          `gorm:"type:text;not null;default:''"`
	PackagingNeeded   bool            `gorm:"not null;default:false"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
	PaidAt            *time.Time

	Lines []Line `gorm:"-"`
}

func (Order) TableName() string { return "orders" }

// Settled reports whether the order has already been paid. paid_at is the
// marker that inventory was deducted for it.
func (o Order) Settled() bool {
	return o.Status == StatusPaid || o.PaidAt != nil
}

// Line snapshots the item name and price at order time.
type Line struct {
	ID       int64           `gorm:"primaryKey"`
	OrderID  int64           `gorm:"not null;index"`
	ItemID   int64           `gorm:"not null"`
	SKU      int64           `gorm:"column:sku;not null"`
	Name     string          `gorm:"type:text;not null"`
	Price    decimal.Decimal `gorm:"type:numeric(9,2);not null"`
	Qty      int             `gorm:"not null"`
	Position int             `gorm:"not null;default:0"`
}

func (Line) TableName() string { return "order_lines" }

func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}
