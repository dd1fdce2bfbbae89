package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const recordColumns = `id, order_id, provider_ref, status, status_detail, checkout_url, raw, created_at, updated_at`

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID int64) (*domain.PaymentRecord, error) {
	return r.findOne(ctx, db, `SELECT `+recordColumns+` FROM payment_records WHERE order_id = ?`, orderID)
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, ref string) (*domain.PaymentRecord, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `SELECT `+recordColumns+` FROM payment_records WHERE provider_ref = ? ORDER BY id LIMIT 1`, ref)
}

func (r *repo) LockByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("order_id = ?", orderID).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// Upsert creates the record for an order or refreshes its checkout data. The
// approval status is never downgraded by a new checkout.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	if record == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id) DO UPDATE
		 SET provider_ref = excluded.provider_ref,
		     status_detail = excluded.status_detail,
		     checkout_url = excluded.checkout_url,
		     raw = excluded.raw,
		     updated_at = excluded.updated_at`,
		record.ID,
		record.OrderID,
		record.ProviderRef,
		record.Status,
		record.StatusDetail,
		record.CheckoutURL,
		domain.RawJSON(record.Raw),
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	if record == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, status_detail = ?, raw = ?, updated_at = ?
		 WHERE id = ?`,
		record.Status,
		record.StatusDetail,
		domain.RawJSON(record.Raw),
		record.UpdatedAt,
		record.ID,
	).Error
}

func (r *repo) UpdatePendingDetail(ctx context.Context, db *gorm.DB, id int64, detail string, raw []byte, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status_detail = ?, raw = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		detail,
		domain.RawJSON(raw),
		at,
		id,
		domain.StatusApproved,
	).Error
}

func (r *repo) DeleteAll(ctx context.Context, tx *gorm.DB) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM payment_records`).Error
}

func (r *repo) RecordNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_notifications (
			id, provider, dedup_key, topic, payment_id, external_reference,
			payload, outcome, deliveries, received_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (dedup_key) DO UPDATE
		SET deliveries = payment_notifications.deliveries + 1,
		    updated_at = excluded.updated_at`,
		n.ID,
		n.Provider,
		n.DedupKey,
		n.Topic,
		n.PaymentID,
		n.ExternalReference,
		domain.RawJSON(n.Payload),
		n.Outcome,
		n.ReceivedAt,
		n.UpdatedAt,
	).Error
}

func (r *repo) SetNotificationOutcome(ctx context.Context, db *gorm.DB, dedupKey, outcome string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_notifications SET outcome = ? WHERE dedup_key = ?`,
		outcome,
		dedupKey,
	).Error
}
