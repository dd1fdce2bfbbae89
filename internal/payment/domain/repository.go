package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID int64) (*PaymentRecord, error)
	FindByProviderRef(ctx context.Context, db *gorm.DB, ref string) (*PaymentRecord, error)
	// LockByOrderID re-reads the record with a row write lock; tx must be a transaction.
	LockByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) (*PaymentRecord, error)
	Upsert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	UpdateState(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	// UpdatePendingDetail stores the latest provider view on a record that is not approved yet.
	UpdatePendingDetail(ctx context.Context, db *gorm.DB, id int64, detail string, raw []byte, at time.Time) error
	DeleteAll(ctx context.Context, tx *gorm.DB) error

	// RecordNotification stores a webhook delivery; redeliveries bump the counter.
	RecordNotification(ctx context.Context, db *gorm.DB, n *Notification) error
	SetNotificationOutcome(ctx context.Context, db *gorm.DB, dedupKey, outcome string) error
}
