package database

import (
	"context"
	"time"

	"dhbvn-alerts/internal/dhbvn"
	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/outage"
)

const snapshotColumns = `id, district_id, outage_hash, area, feeder,
	       start_time, restoration_time, reason, first_seen, last_seen, is_resolved`

func scanSnapshot(row interface{ Scan(...any) error }) (models.OutageSnapshot, error) {
	var o models.OutageSnapshot
	err := row.Scan(
		&o.ID, &o.DistrictID, &o.OutageHash, &o.Area, &o.Feeder,
		&o.StartTime, &o.RestorationTime, &o.Reason, &o.FirstSeen, &o.LastSeen, &o.IsResolved,
	)
	return o, err
}

// GetActiveOutages returns all non-resolved snapshots for a district,
// newest start time first.
func (db *DB) GetActiveOutages(ctx context.Context, districtID int) ([]models.OutageSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM outage_snapshots
		WHERE district_id = $1 AND is_resolved = FALSE
		ORDER BY start_time DESC
	`, districtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outages []models.OutageSnapshot
	for rows.Next() {
		o, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		outages = append(outages, o)
	}
	return outages, rows.Err()
}

// UpsertOutage inserts a snapshot for (district, hash) or, if the row
// already exists, refreshes last_seen and re-opens it. A single conditional
// write, so two overlapping polls observing the same outage cannot create
// duplicate rows.
func (db *DB) UpsertOutage(ctx context.Context, districtID int, rec models.OutageRecord) error {
	hash := outage.Hash(rec)
	startTime := parsePortalTime(rec.StartTime)
	restorationTime := parsePortalTime(rec.RestorationTime)

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO outage_snapshots (
			district_id, outage_hash, area, feeder,
			start_time, restoration_time, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (district_id, outage_hash)
		DO UPDATE SET last_seen = NOW(), is_resolved = FALSE
	`, districtID, hash, rec.Area, rec.Feeder, startTime, restorationTime, rec.Reason)
	return err
}

// MarkResolved flips is_resolved for the given hashes in one district and
// returns only the rows this statement actually changed. The is_resolved
// guard makes the flip idempotent: when two overlapping polls race, exactly
// one gets the row back and triggers the resolution notification.
func (db *DB) MarkResolved(ctx context.Context, districtID int, hashes []string) ([]models.OutageSnapshot, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx, `
		UPDATE outage_snapshots
		SET is_resolved = TRUE, last_seen = NOW()
		WHERE district_id = $1 AND outage_hash = ANY($2) AND is_resolved = FALSE
		RETURNING `+snapshotColumns, districtID, hashes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolved []models.OutageSnapshot
	for rows.Next() {
		o, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, o)
	}
	return resolved, rows.Err()
}

// TouchLastSeen refreshes last_seen for an outage that remains observed.
func (db *DB) TouchLastSeen(ctx context.Context, districtID int, hash string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE outage_snapshots
		SET last_seen = NOW()
		WHERE district_id = $1 AND outage_hash = $2
	`, districtID, hash)
	return err
}

// CleanupOldOutages deletes resolved snapshots last seen before the
// retention window and returns the number of rows removed.
func (db *DB) CleanupOldOutages(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM outage_snapshots
		WHERE is_resolved = TRUE AND last_seen < NOW() - make_interval(days => $1)
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// OutageStats summarises snapshot counts for the dashboard.
type OutageStats struct {
	ActiveCount       int `json:"active_count"`
	ResolvedCount     int `json:"resolved_count"`
	AffectedDistricts int `json:"affected_districts"`
}

// GetOutageStats returns snapshot counts, for all districts when
// districtID is 0.
func (db *DB) GetOutageStats(ctx context.Context, districtID int) (*OutageStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_resolved = FALSE),
			COUNT(*) FILTER (WHERE is_resolved = TRUE),
			COUNT(DISTINCT district_id)
		FROM outage_snapshots
	`
	args := []any{}
	if districtID != 0 {
		query += ` WHERE district_id = $1`
		args = append(args, districtID)
	}

	var s OutageStats
	if err := db.Pool.QueryRow(ctx, query, args...).Scan(
		&s.ActiveCount, &s.ResolvedCount, &s.AffectedDistricts,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// parsePortalTime converts a portal display time to an absolute timestamp,
// falling back to now for strings the portal emits malformed.
func parsePortalTime(s string) time.Time {
	t, err := dhbvn.ParseISTTime(s)
	if err != nil {
		return time.Now()
	}
	return t
}
