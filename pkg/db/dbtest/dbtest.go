// Package dbtest opens isolated in-memory SQLite databases carrying the
// storefront schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		sku TEXT NOT NULL UNIQUE,
		price TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_images (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		url TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
	`CREATE TABLE inventory_items (
		id TEXT PRIMARY KEY,
		variant_id TEXT NOT NULL UNIQUE,
		quantity INTEGER NOT NULL DEFAULT 0,
		reserved_quantity INTEGER NOT NULL DEFAULT 0,
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK (reserved_quantity >= 0 AND reserved_quantity <= quantity)
	)`,
	`CREATE TABLE inventory_movements (
		id TEXT PRIMARY KEY,
		inventory_item_id TEXT NOT NULL,
		variant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		previous_quantity INTEGER NOT NULL,
		new_quantity INTEGER NOT NULL,
		reference_type TEXT,
		reference_id TEXT,
		notes TEXT,
		actor_id TEXT,
		created_at DATETIME,
		CHECK (new_quantity = previous_quantity + quantity)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		customer_id TEXT,
		status TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		shipping_cost TEXT NOT NULL,
		discount_amount TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		shipping_method TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		shipping_address TEXT NOT NULL,
		billing_address TEXT,
		notes TEXT,
		admin_notes TEXT,
		paid_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		product_name TEXT NOT NULL,
		variant_name TEXT NOT NULL,
		sku TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE order_status_history (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		notes TEXT,
		changed_by TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		external_id TEXT NOT NULL UNIQUE,
		external_status TEXT,
		transaction_id TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		payment_url TEXT,
		expires_at DATETIME,
		failure_reason TEXT,
		processed_at DATETIME,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh database. A single pooled connection serializes
// transactions, which stands in for Postgres row locks in concurrency tests.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
