package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate creates the schema if it doesn't exist.
func (db *DB) Migrate(ctx context.Context) error {
	sql := `
	CREATE TABLE IF NOT EXISTS outage_snapshots (
		id               BIGSERIAL PRIMARY KEY,
		district_id      INT NOT NULL,
		outage_hash      CHAR(32) NOT NULL,
		area             TEXT NOT NULL,
		feeder           TEXT NOT NULL,
		start_time       TIMESTAMPTZ NOT NULL,
		restoration_time TIMESTAMPTZ NOT NULL,
		reason           TEXT NOT NULL DEFAULT '',
		first_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_resolved      BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (district_id, outage_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_outage_snapshots_active
		ON outage_snapshots (district_id) WHERE is_resolved = FALSE;

	CREATE TABLE IF NOT EXISTS subscriptions (
		id                     BIGSERIAL PRIMARY KEY,
		platform               TEXT NOT NULL DEFAULT 'telegram',
		chat_id                TEXT NOT NULL,
		username               TEXT NOT NULL DEFAULT '',
		district_id            INT NOT NULL,
		district_name          TEXT NOT NULL,
		subscribed_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_notification_sent TIMESTAMPTZ,
		is_active              BOOLEAN NOT NULL DEFAULT TRUE,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (platform, chat_id)
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_district
		ON subscriptions (district_id) WHERE is_active = TRUE;
	`
	_, err := db.Pool.Exec(ctx, sql)
	return err
}
