package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dhbvn-alerts/internal/dispatch"
	"dhbvn-alerts/internal/district"
	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/outage"
)

// DefaultDistrictTimeoutSec bounds one district's scrape + reconcile +
// dispatch so a stuck upstream call cannot wedge the whole run.
const DefaultDistrictTimeoutSec = 60

// Scraper fetches current outage records for a district. An error means the
// fetch failed; an empty slice with nil error means a genuinely empty
// result. The two must never be conflated.
type Scraper interface {
	FetchOutages(ctx context.Context, districtID int) ([]models.OutageRecord, error)
}

// SubscriptionSource is the subscriber roster projection the poller needs.
type SubscriptionSource interface {
	GetActiveDistricts(ctx context.Context) ([]int, error)
	GetSubscriptionsByDistrict(ctx context.Context, districtID int) ([]models.Subscription, error)
}

// Poller iterates all districts with subscribers and drives one
// scrape → detect → dispatch cycle per district.
type Poller struct {
	subs            SubscriptionSource
	scraper         Scraper
	detector        *outage.Detector
	dispatcher      *dispatch.Dispatcher
	districtTimeout time.Duration
}

func New(subs SubscriptionSource, scraper Scraper, detector *outage.Detector, dispatcher *dispatch.Dispatcher, districtTimeoutSec int) *Poller {
	if districtTimeoutSec <= 0 {
		districtTimeoutSec = DefaultDistrictTimeoutSec
	}
	return &Poller{
		subs:            subs,
		scraper:         scraper,
		detector:        detector,
		dispatcher:      dispatcher,
		districtTimeout: time.Duration(districtTimeoutSec) * time.Second,
	}
}

// RunPoll executes one poll cycle. District failures are isolated into
// their report entries; only a failure to enumerate active districts fails
// the run itself.
func (p *Poller) RunPoll(ctx context.Context) (*models.RunReport, error) {
	start := time.Now()

	districts, err := p.subs.GetActiveDistricts(ctx)
	if err != nil {
		return &models.RunReport{
			Status:     "error",
			Message:    fmt.Sprintf("enumerate active districts: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}, fmt.Errorf("enumerate active districts: %w", err)
	}

	if len(districts) == 0 {
		log.Println("[poller] no active subscriptions, skipping outage check")
		return &models.RunReport{
			Status:     "success",
			Message:    "No active subscriptions",
			DurationMs: time.Since(start).Milliseconds(),
			Details:    []models.DistrictResult{},
		}, nil
	}

	log.Printf("[poller] checking %d districts with active subscriptions", len(districts))

	// Districts are independent key spaces in the store, so they can run
	// in parallel.
	results := make([]models.DistrictResult, len(districts))
	var wg sync.WaitGroup
	for i, id := range districts {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			results[i] = p.processDistrict(ctx, id)
		}(i, id)
	}
	wg.Wait()

	report := &models.RunReport{
		Status:           "success",
		DurationMs:       time.Since(start).Milliseconds(),
		DistrictsChecked: len(districts),
		Details:          results,
	}
	for _, r := range results {
		report.Totals.Subscribers += r.Subscribers
		report.Totals.NewOutages += r.NewOutages
		report.Totals.Resolved += r.Resolved
		report.Totals.Sent += r.Sent
		report.Totals.Failed += r.Failed
	}

	log.Printf("[poller] poll completed in %dms: %d new, %d resolved, %d sent, %d failed",
		report.DurationMs, report.Totals.NewOutages, report.Totals.Resolved,
		report.Totals.Sent, report.Totals.Failed)
	return report, nil
}

// processDistrict runs one district's cycle under its own timeout. Any
// error becomes an annotation on the result, never a run failure.
func (p *Poller) processDistrict(ctx context.Context, districtID int) models.DistrictResult {
	result := models.DistrictResult{
		DistrictID:   districtID,
		DistrictName: district.Name(districtID),
	}

	ctx, cancel := context.WithTimeout(ctx, p.districtTimeout)
	defer cancel()

	// A failed scrape must not reach the detector: reconciling an empty
	// slice would resolve every active outage.
	current, err := p.scraper.FetchOutages(ctx, districtID)
	if err != nil {
		log.Printf("[poller] district %d (%s): scrape failed: %v", districtID, result.DistrictName, err)
		result.Error = fmt.Sprintf("scrape failed: %v", err)
		return result
	}

	changes, err := p.detector.DetectChanges(ctx, districtID, current)
	if err != nil {
		log.Printf("[poller] district %d (%s): reconcile failed: %v", districtID, result.DistrictName, err)
		result.Error = fmt.Sprintf("reconcile failed: %v", err)
		return result
	}
	result.NewOutages = len(changes.New)
	result.Resolved = len(changes.Resolved)

	subscribers, err := p.subs.GetSubscriptionsByDistrict(ctx, districtID)
	if err != nil {
		result.Error = fmt.Sprintf("load subscribers: %v", err)
		return result
	}
	result.Subscribers = len(subscribers)

	delivery, err := p.dispatcher.Dispatch(ctx, result.DistrictName, changes, subscribers)
	result.Sent = delivery.Sent
	result.Failed = delivery.Failed
	if err != nil {
		result.Error = fmt.Sprintf("dispatch failed: %v", err)
	}
	return result
}

// Start runs poll cycles on a fixed interval until ctx is cancelled. The
// first cycle fires immediately.
func (p *Poller) Start(ctx context.Context, intervalSec int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	log.Printf("[poller] started (interval=%ds)", intervalSec)
	if _, err := p.RunPoll(ctx); err != nil {
		log.Printf("[poller] run failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("[poller] stopped")
			return
		case <-ticker.C:
			if _, err := p.RunPoll(ctx); err != nil {
				log.Printf("[poller] run failed: %v", err)
			}
		}
	}
}
