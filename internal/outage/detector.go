package outage

import (
	"context"
	"fmt"
	"log"

	"dhbvn-alerts/internal/models"
)

// Store is the snapshot persistence the detector reconciles against.
// All operations are scoped to one district.
type Store interface {
	// GetActiveOutages returns the non-resolved rows for a district,
	// sorted by start_time descending.
	GetActiveOutages(ctx context.Context, districtID int) ([]models.OutageSnapshot, error)
	// UpsertOutage atomically inserts a row for (districtID, hash) or, if
	// one exists, refreshes last_seen and clears is_resolved.
	UpsertOutage(ctx context.Context, districtID int, rec models.OutageRecord) error
	// MarkResolved flips is_resolved for the given hashes and returns only
	// the rows this call actually changed. Already-resolved hashes are
	// skipped, not errors.
	MarkResolved(ctx context.Context, districtID int, hashes []string) ([]models.OutageSnapshot, error)
	// TouchLastSeen refreshes last_seen for a row that remains observed.
	TouchLastSeen(ctx context.Context, districtID int, hash string) error
}

// Changes holds the three partitions of one district reconciliation.
type Changes struct {
	New      []models.OutageRecord
	Resolved []models.OutageSnapshot
	Ongoing  []models.OutageSnapshot
}

// Detector reconciles freshly scraped records against the snapshot store.
type Detector struct {
	store Store
}

func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// DetectChanges partitions current records into new/resolved/ongoing and
// applies the matching store mutations.
//
// Resolution is computed and committed against the active set as it was at
// the start of this call, before any upserts, so a record that disappears
// and reappears within one poll keeps its "new" signal. The resolved
// partition is whatever MarkResolved actually changed, never the locally
// computed set: an overlapping run that loses the race to flip a row gets
// an empty result for it and must not re-notify.
//
// current must be the outcome of a successful scrape. A failed scrape has
// to be skipped upstream; passing an empty slice here resolves everything.
func (d *Detector) DetectChanges(ctx context.Context, districtID int, current []models.OutageRecord) (*Changes, error) {
	existing, err := d.store.GetActiveOutages(ctx, districtID)
	if err != nil {
		return nil, fmt.Errorf("load active outages: %w", err)
	}

	currentHashes := make(map[string]bool, len(current))
	for _, rec := range current {
		currentHashes[Hash(rec)] = true
	}
	existingHashes := make(map[string]bool, len(existing))
	for _, o := range existing {
		existingHashes[o.OutageHash] = true
	}

	// New records: in current but not in the pre-poll active set.
	// Deduplicate by hash so duplicate upstream rows emit one entry.
	var newRecords []models.OutageRecord
	seen := make(map[string]bool)
	for _, rec := range current {
		h := Hash(rec)
		if existingHashes[h] || seen[h] {
			continue
		}
		seen[h] = true
		newRecords = append(newRecords, rec)
	}

	var resolvedHashes []string
	for _, o := range existing {
		if !currentHashes[o.OutageHash] {
			resolvedHashes = append(resolvedHashes, o.OutageHash)
		}
	}

	// Durable commit point for resolution.
	resolved, err := d.store.MarkResolved(ctx, districtID, resolvedHashes)
	if err != nil {
		return nil, fmt.Errorf("mark resolved: %w", err)
	}

	var ongoing []models.OutageSnapshot
	for _, o := range existing {
		if currentHashes[o.OutageHash] {
			ongoing = append(ongoing, o)
		}
	}

	for _, rec := range newRecords {
		if err := d.store.UpsertOutage(ctx, districtID, rec); err != nil {
			return nil, fmt.Errorf("save outage %q/%q: %w", rec.Area, rec.Feeder, err)
		}
	}
	for _, o := range ongoing {
		if err := d.store.TouchLastSeen(ctx, districtID, o.OutageHash); err != nil {
			return nil, fmt.Errorf("touch outage %s: %w", o.OutageHash, err)
		}
	}

	if len(newRecords) > 0 || len(resolved) > 0 {
		log.Printf("[detector] district %d: %d new, %d resolved, %d ongoing",
			districtID, len(newRecords), len(resolved), len(ongoing))
	}

	return &Changes{New: newRecords, Resolved: resolved, Ongoing: ongoing}, nil
}
