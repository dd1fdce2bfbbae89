// Package testutil provides an in-memory database carrying the production schema for package tests.
package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE items (
		id BIGINT PRIMARY KEY,
		sku BIGINT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(9,2) NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		stock_initial INTEGER NOT NULL DEFAULT 0,
		sold_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE category_orders (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 100,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		total NUMERIC(10,2) NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		provider_payment_id TEXT NOT NULL DEFAULT '',
		payment_link TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		packaging_needed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		paid_at DATETIME
	)`,
	`CREATE TABLE order_lines (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		sku BIGINT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC(9,2) NOT NULL,
		qty INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE payment_records (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL UNIQUE,
		provider_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		status_detail TEXT NOT NULL DEFAULT '',
		checkout_url TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_status_logs (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		source TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	)`,
	`CREATE TABLE payment_notifications (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		dedup_key TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL DEFAULT '',
		payment_id TEXT NOT NULL DEFAULT '',
		external_reference TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		outcome TEXT NOT NULL DEFAULT '',
		deliveries INTEGER NOT NULL DEFAULT 1,
		received_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE dashboard_users (
		id BIGINT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		allowed_routes TEXT NOT NULL DEFAULT '[]',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE auth_tokens (
		id BIGINT PRIMARY KEY,
		token_key TEXT NOT NULL UNIQUE,
		user_id BIGINT NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		expires_at DATETIME
	)`,
}

// NewDB opens a private in-memory sqlite database with every table created.
// A single connection serializes transactions the way row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// AssertCount fails the test when the query's single integer result differs from want.
func AssertCount(t *testing.T, db *gorm.DB, query string, want int64, args ...any) {
	t.Helper()
	var got int64
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d rows, got %d (%s)", want, got, query)
	}
}

// SeedItem inserts an active catalog item.
func SeedItem(t *testing.T, db *gorm.DB, id, sku int64, price string, stock, sold int) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO items (id, sku, name, price, category, active, stock_initial, sold_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		id, sku, fmt.Sprintf("Item %d", sku), price, "Salgados", stock, sold, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

// SoldCount reads the sold counter of an item.
func SoldCount(t *testing.T, db *gorm.DB, id int64) int {
	t.Helper()
	var sold int
	if err := db.Raw(`SELECT sold_count FROM items WHERE id = ?`, id).Scan(&sold).Error; err != nil {
		t.Fatalf("read sold_count: %v", err)
	}
	return sold
}

// RedisAddr returns REDIS_TEST_ADDR or skips the test when it is unset.
func RedisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	return addr
}
