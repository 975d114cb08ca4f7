package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The production schema is migrated by GORM against Postgres; its column
// defaults (gen_random_uuid, jsonb) do not parse on SQLite, so the test store
// declares the tables directly. Keep the unique indexes in step with the
// model tags: they are load-bearing for idempotency and the single
// in_progress reward guarantee.
var testSchema = []string{
	`CREATE TABLE offers (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		brand TEXT NOT NULL,
		size_group TEXT NOT NULL,
		required_quantity INTEGER NOT NULL,
		reward_quantity INTEGER NOT NULL DEFAULT 1,
		window_months INTEGER NOT NULL DEFAULT 12,
		active NUMERIC DEFAULT true,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_offer_tenant_brand_size ON offers(tenant_id, brand, size_group)`,
	`CREATE TABLE qualifying_variations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		variation_id TEXT NOT NULL,
		item_name TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_qv_tenant_variation ON qualifying_variations(tenant_id, variation_id)`,
	`CREATE TABLE purchase_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		location_id TEXT,
		variation_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price_cents INTEGER,
		purchased_at DATETIME NOT NULL,
		window_start_date DATETIME NOT NULL,
		window_end_date DATETIME NOT NULL,
		reward_id TEXT,
		idempotency_key TEXT NOT NULL,
		is_refund NUMERIC DEFAULT false,
		refunds_event_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_event_tenant_idem_key ON purchase_events(tenant_id, idempotency_key)`,
	`CREATE TABLE rewards (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		current_quantity INTEGER NOT NULL DEFAULT 0,
		required_quantity INTEGER NOT NULL,
		window_start_date DATETIME,
		window_end_date DATETIME,
		earned_at DATETIME,
		redeemed_at DATETIME,
		revoked_at DATETIME,
		revocation_reason TEXT,
		pos_group_id TEXT,
		pos_discount_id TEXT,
		pos_pricing_rule_id TEXT,
		pos_product_set_id TEXT,
		pos_synced_at DATETIME,
		redemption_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_reward_active_pair ON rewards(tenant_id, offer_id, customer_id) WHERE status = 'in_progress'`,
	`CREATE TABLE redemptions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		reward_id TEXT NOT NULL UNIQUE,
		offer_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		type TEXT NOT NULL,
		order_id TEXT,
		value_cents INTEGER,
		actor TEXT,
		redeemed_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE customer_summaries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		current_quantity INTEGER DEFAULT 0,
		window_start_date DATETIME,
		window_end_date DATETIME,
		has_earned NUMERIC DEFAULT false,
		lifetime_purchases INTEGER DEFAULT 0,
		lifetime_quantity INTEGER DEFAULT 0,
		rewards_earned INTEGER DEFAULT 0,
		rewards_redeemed INTEGER DEFAULT 0,
		last_purchase_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_summary_pair ON customer_summaries(tenant_id, customer_id, offer_id)`,
	`CREATE TABLE audit_log_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		action TEXT NOT NULL,
		customer_id TEXT,
		actor_id TEXT,
		offer_id TEXT,
		reward_id TEXT,
		purchase_event_id TEXT,
		redemption_id TEXT,
		details TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE settings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		"key" TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_setting_tenant_key ON settings(tenant_id, "key")`,
}

func testStore(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	for _, ddl := range testSchema {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}
