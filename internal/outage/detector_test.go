package outage_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/outage"
)

// memStore mimics the snapshot table's semantics: unique (district, hash),
// conditional resolution flip, upsert that re-opens existing rows.
type memStore struct {
	rows   map[string]*models.OutageSnapshot // keyed by district/hash
	nextID int64

	failGetActive bool
	failUpsert    bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*models.OutageSnapshot)}
}

func key(districtID int, hash string) string {
	return fmt.Sprintf("%d/%s", districtID, hash)
}

func (s *memStore) GetActiveOutages(ctx context.Context, districtID int) ([]models.OutageSnapshot, error) {
	if s.failGetActive {
		return nil, errors.New("storage unavailable")
	}
	var active []models.OutageSnapshot
	for _, o := range s.rows {
		if o.DistrictID == districtID && !o.IsResolved {
			active = append(active, *o)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartTime.After(active[j].StartTime) })
	return active, nil
}

func (s *memStore) UpsertOutage(ctx context.Context, districtID int, rec models.OutageRecord) error {
	if s.failUpsert {
		return errors.New("storage unavailable")
	}
	h := outage.Hash(rec)
	now := time.Now()
	if o, ok := s.rows[key(districtID, h)]; ok {
		o.LastSeen = now
		o.IsResolved = false
		return nil
	}
	s.nextID++
	s.rows[key(districtID, h)] = &models.OutageSnapshot{
		ID:         s.nextID,
		DistrictID: districtID,
		OutageHash: h,
		Area:       rec.Area,
		Feeder:     rec.Feeder,
		Reason:     rec.Reason,
		FirstSeen:  now,
		LastSeen:   now,
	}
	return nil
}

func (s *memStore) MarkResolved(ctx context.Context, districtID int, hashes []string) ([]models.OutageSnapshot, error) {
	var changed []models.OutageSnapshot
	for _, h := range hashes {
		o, ok := s.rows[key(districtID, h)]
		if !ok || o.IsResolved {
			continue
		}
		o.IsResolved = true
		o.LastSeen = time.Now()
		changed = append(changed, *o)
	}
	return changed, nil
}

func (s *memStore) TouchLastSeen(ctx context.Context, districtID int, hash string) error {
	if o, ok := s.rows[key(districtID, hash)]; ok {
		o.LastSeen = time.Now()
	}
	return nil
}

func (s *memStore) activeCount(districtID int) int {
	n := 0
	for _, o := range s.rows {
		if o.DistrictID == districtID && !o.IsResolved {
			n++
		}
	}
	return n
}

func TestDetectChanges_Lifecycle(t *testing.T) {
	store := newMemStore()
	detector := outage.NewDetector(store)
	ctx := context.Background()
	rec := baseRecord()

	// First observation: one new outage, one active row.
	changes, err := detector.DetectChanges(ctx, 4, []models.OutageRecord{rec})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(changes.New) != 1 || len(changes.Resolved) != 0 || len(changes.Ongoing) != 0 {
		t.Fatalf("first call: got %d new, %d resolved, %d ongoing",
			len(changes.New), len(changes.Resolved), len(changes.Ongoing))
	}
	if store.activeCount(4) != 1 {
		t.Fatalf("expected 1 active row, got %d", store.activeCount(4))
	}

	// Same input again: nothing new, the row is ongoing.
	before := store.rows[key(4, outage.Hash(rec))].LastSeen
	changes, err = detector.DetectChanges(ctx, 4, []models.OutageRecord{rec})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(changes.New) != 0 || len(changes.Resolved) != 0 || len(changes.Ongoing) != 1 {
		t.Fatalf("second call: got %d new, %d resolved, %d ongoing",
			len(changes.New), len(changes.Resolved), len(changes.Ongoing))
	}
	if store.rows[key(4, outage.Hash(rec))].LastSeen.Before(before) {
		t.Error("last_seen moved backwards for ongoing outage")
	}

	// Outage disappears: resolved exactly once.
	changes, err = detector.DetectChanges(ctx, 4, nil)
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if len(changes.Resolved) != 1 {
		t.Fatalf("third call: expected 1 resolved, got %d", len(changes.Resolved))
	}
	if !store.rows[key(4, outage.Hash(rec))].IsResolved {
		t.Error("row not marked resolved in store")
	}

	// Still gone: idempotent, no second resolution.
	changes, err = detector.DetectChanges(ctx, 4, nil)
	if err != nil {
		t.Fatalf("fourth call: %v", err)
	}
	if len(changes.New) != 0 || len(changes.Resolved) != 0 || len(changes.Ongoing) != 0 {
		t.Fatalf("fourth call: expected all partitions empty, got %d new, %d resolved, %d ongoing",
			len(changes.New), len(changes.Resolved), len(changes.Ongoing))
	}
}

func TestDetectChanges_DeduplicatesUpstreamRows(t *testing.T) {
	store := newMemStore()
	detector := outage.NewDetector(store)
	rec := baseRecord()

	changes, err := detector.DetectChanges(context.Background(), 4, []models.OutageRecord{rec, rec, rec})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes.New) != 1 {
		t.Errorf("expected 1 new record after dedupe, got %d", len(changes.New))
	}
	if store.activeCount(4) != 1 {
		t.Errorf("expected 1 active row, got %d", store.activeCount(4))
	}
}

func TestDetectChanges_ResolvedIsStoreResult(t *testing.T) {
	// The resolved partition must be what MarkResolved actually changed,
	// so a run that loses the race to flip a row reports nothing for it.
	store := newMemStore()
	detector := outage.NewDetector(store)
	ctx := context.Background()
	rec := baseRecord()

	if _, err := detector.DetectChanges(ctx, 4, []models.OutageRecord{rec}); err != nil {
		t.Fatal(err)
	}

	// A concurrent run already flipped the row.
	if _, err := store.MarkResolved(ctx, 4, []string{outage.Hash(rec)}); err != nil {
		t.Fatal(err)
	}

	changes, err := detector.DetectChanges(ctx, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes.Resolved) != 0 {
		t.Errorf("expected empty resolved partition after losing the race, got %d", len(changes.Resolved))
	}
}

func TestDetectChanges_ReopensResolvedOutage(t *testing.T) {
	store := newMemStore()
	detector := outage.NewDetector(store)
	ctx := context.Background()
	rec := baseRecord()

	if _, err := detector.DetectChanges(ctx, 4, []models.OutageRecord{rec}); err != nil {
		t.Fatal(err)
	}
	if _, err := detector.DetectChanges(ctx, 4, nil); err != nil {
		t.Fatal(err)
	}

	// Same hash observed again: reported as new, same row re-opened.
	changes, err := detector.DetectChanges(ctx, 4, []models.OutageRecord{rec})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes.New) != 1 {
		t.Fatalf("expected re-observed outage reported as new, got %d", len(changes.New))
	}
	if len(store.rows) != 1 {
		t.Errorf("expected a single row for the re-opened outage, got %d", len(store.rows))
	}
	if store.rows[key(4, outage.Hash(rec))].IsResolved {
		t.Error("re-observed row should be active again")
	}
}

func TestDetectChanges_DistrictsAreIsolated(t *testing.T) {
	store := newMemStore()
	detector := outage.NewDetector(store)
	ctx := context.Background()
	rec := baseRecord()

	if _, err := detector.DetectChanges(ctx, 4, []models.OutageRecord{rec}); err != nil {
		t.Fatal(err)
	}
	if _, err := detector.DetectChanges(ctx, 8, []models.OutageRecord{rec}); err != nil {
		t.Fatal(err)
	}

	// Resolving in district 4 must not touch district 8's row.
	if _, err := detector.DetectChanges(ctx, 4, nil); err != nil {
		t.Fatal(err)
	}
	if store.activeCount(8) != 1 {
		t.Errorf("district 8 active set changed by district 4 reconciliation")
	}
}

func TestDetectChanges_StoreFailureAborts(t *testing.T) {
	store := newMemStore()
	detector := outage.NewDetector(store)

	store.failGetActive = true
	if _, err := detector.DetectChanges(context.Background(), 4, nil); err == nil {
		t.Error("expected error when active set cannot be loaded")
	}

	store.failGetActive = false
	store.failUpsert = true
	if _, err := detector.DetectChanges(context.Background(), 4, []models.OutageRecord{baseRecord()}); err == nil {
		t.Error("expected error when upsert fails")
	}
}
