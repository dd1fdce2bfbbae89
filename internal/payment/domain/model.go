package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// PaymentRecord links an order to its provider-side payment. ProviderRef holds
// the checkout preference id, or the charge id for PIX charges.
type PaymentRecord struct {
	ID           int64          `gorm:"primaryKey"`
	OrderID      int64          `gorm:"not null;uniqueIndex"`
	ProviderRef  string         `gorm:"type:text;not null;default:'';index"`
	Status       string         `gorm:"type:text;not null;default:'pending'"`
	StatusDetail string         `gorm:"type:text;not null;default:''"`
	CheckoutURL  string         `gorm:"type:text;not null;default:''"`
	Raw          datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

func (r PaymentRecord) Approved() bool {
	return r.Status == StatusApproved
}

// Notification is the diagnostic journal of inbound webhooks. It is never
// consulted to decide idempotency.
type Notification struct {
	ID                string         `gorm:"primaryKey;type:text"`
	Provider          string         `gorm:"type:text;not null"`
	DedupKey          string         `gorm:"type:text;not null;uniqueIndex"`
	Topic             string         `gorm:"type:text;not null;default:''"`
	PaymentID         string         `gorm:"type:text;not null;default:''"`
	ExternalReference string         `gorm:"type:text;not null;default:''"`
	Payload           datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	Outcome           string         `gorm:"type:text;not null;default:''"`
	Deliveries        int            `gorm:"not null;default:1"`
	ReceivedAt        time.Time      `gorm:"not null"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

func (Notification) TableName() string { return "payment_notifications" }

// RawJSON normalizes provider payloads for storage; invalid or empty input becomes "{}".
func RawJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
