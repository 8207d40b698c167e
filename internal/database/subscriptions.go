package database

import (
	"context"

	"dhbvn-alerts/internal/district"
	"dhbvn-alerts/internal/models"
)

const subscriptionColumns = `id, platform, chat_id, username, district_id, district_name,
	       subscribed_at, last_notification_sent, is_active, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(
		&s.ID, &s.Platform, &s.ChatID, &s.Username, &s.DistrictID, &s.DistrictName,
		&s.SubscribedAt, &s.LastNotificationSent, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// UpsertSubscription creates a subscription or moves an existing one to a
// new district, reactivating it.
func (db *DB) UpsertSubscription(ctx context.Context, platform models.Platform, chatID, username string, districtID int) (*models.Subscription, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO subscriptions (platform, chat_id, username, district_id, district_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, chat_id)
		DO UPDATE SET
			district_id = $4, district_name = $5, username = $3,
			is_active = TRUE, updated_at = NOW()
		RETURNING `+subscriptionColumns,
		platform, chatID, username, districtID, district.Name(districtID))

	s, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubscription returns the subscription for a chat, or pgx.ErrNoRows.
func (db *DB) GetSubscription(ctx context.Context, platform models.Platform, chatID string) (*models.Subscription, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE platform = $1 AND chat_id = $2
	`, platform, chatID)

	s, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubscriptionsByDistrict returns all active subscriptions for a district.
func (db *DB) GetSubscriptionsByDistrict(ctx context.Context, districtID int) ([]models.Subscription, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE district_id = $1 AND is_active = TRUE
		ORDER BY subscribed_at DESC
	`, districtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetActiveDistricts returns the IDs of districts having at least one
// active subscriber.
func (db *DB) GetActiveDistricts(ctx context.Context) ([]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT district_id
		FROM subscriptions
		WHERE is_active = TRUE
		ORDER BY district_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var districts []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		districts = append(districts, id)
	}
	return districts, rows.Err()
}

// Unsubscribe deactivates a chat's subscription. Returns false when no
// subscription existed.
func (db *DB) Unsubscribe(ctx context.Context, platform models.Platform, chatID string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE subscriptions
		SET is_active = FALSE, updated_at = NOW()
		WHERE platform = $1 AND chat_id = $2
	`, platform, chatID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Resubscribe reactivates a previously stopped subscription.
func (db *DB) Resubscribe(ctx context.Context, platform models.Platform, chatID string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE subscriptions
		SET is_active = TRUE, updated_at = NOW()
		WHERE platform = $1 AND chat_id = $2
	`, platform, chatID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateLastNotification stamps the time a chat last received an alert.
func (db *DB) UpdateLastNotification(ctx context.Context, platform models.Platform, chatID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE subscriptions
		SET last_notification_sent = NOW()
		WHERE platform = $1 AND chat_id = $2
	`, platform, chatID)
	return err
}

// SubscriptionStats summarises subscriber counts for the dashboard.
type SubscriptionStats struct {
	TotalSubscriptions  int `json:"total_subscriptions"`
	ActiveSubscriptions int `json:"active_subscriptions"`
	ActiveDistricts     int `json:"active_districts"`
}

// GetSubscriptionStats returns subscriber counts across all districts.
func (db *DB) GetSubscriptionStats(ctx context.Context) (*SubscriptionStats, error) {
	var s SubscriptionStats
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active = TRUE),
			COUNT(DISTINCT district_id) FILTER (WHERE is_active = TRUE)
		FROM subscriptions
	`).Scan(&s.TotalSubscriptions, &s.ActiveSubscriptions, &s.ActiveDistricts)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
