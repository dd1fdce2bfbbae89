package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Status   string
	BeforeID int64
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Order, error)
	// LockByID re-reads the order with a row write lock; tx must be a transaction.
	LockByID(ctx context.Context, tx *gorm.DB, id int64) (*Order, error)
	FindLines(ctx context.Context, db *gorm.DB, orderIDs []int64) ([]Line, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, order *Order) error
	UpdatePayment(ctx context.Context, db *gorm.DB, id int64, providerPaymentID, paymentLink string, at time.Time) error
	DeleteAll(ctx context.Context, tx *gorm.DB) (int64, error)
}
