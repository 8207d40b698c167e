package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dhbvn-alerts/internal/dispatch"
	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/outage"
)

type fakeDeliverer struct {
	batches [][]models.Notification
	fail    bool
}

func (f *fakeDeliverer) SendBatch(ctx context.Context, batch []models.Notification) (models.BatchResult, error) {
	if f.fail {
		return models.BatchResult{Failed: len(batch)}, errors.New("broker unavailable")
	}
	f.batches = append(f.batches, batch)
	return models.BatchResult{Sent: len(batch)}, nil
}

func subscribers(ids ...string) []models.Subscription {
	subs := make([]models.Subscription, len(ids))
	for i, id := range ids {
		subs[i] = models.Subscription{Platform: models.PlatformTelegram, ChatID: id, IsActive: true}
	}
	return subs
}

func sampleChanges(newCount, resolvedCount int) *outage.Changes {
	c := &outage.Changes{}
	for i := 0; i < newCount; i++ {
		c.New = append(c.New, models.OutageRecord{
			Area: "Sector 16", Feeder: "67aa",
			StartTime: "16-Apr-2025 10:24:00", RestorationTime: "16-Apr-2025 12:44:00",
		})
	}
	for i := 0; i < resolvedCount; i++ {
		c.Resolved = append(c.Resolved, models.OutageSnapshot{
			Area: "Sector 21", Feeder: "55b", StartTime: time.Now(),
		})
	}
	return c
}

func TestDispatch_CombinedNewAlert(t *testing.T) {
	deliverer := &fakeDeliverer{}
	d := dispatch.New(deliverer)

	result, err := d.Dispatch(context.Background(), "Hisar", sampleChanges(3, 0), subscribers("100", "200"))
	if err != nil {
		t.Fatal(err)
	}

	// One combined message per subscriber, not one per outage.
	if result.Sent != 2 {
		t.Errorf("expected 2 sent, got %d", result.Sent)
	}
	if len(deliverer.batches) != 1 || len(deliverer.batches[0]) != 2 {
		t.Fatalf("expected a single batch of 2 notifications")
	}
	if !strings.Contains(deliverer.batches[0][0].Message, "3 New Outages") {
		t.Errorf("combined alert missing outage count: %q", deliverer.batches[0][0].Message)
	}
}

func TestDispatch_PerResolvedMessages(t *testing.T) {
	deliverer := &fakeDeliverer{}
	d := dispatch.New(deliverer)

	result, err := d.Dispatch(context.Background(), "Hisar", sampleChanges(0, 2), subscribers("100"))
	if err != nil {
		t.Fatal(err)
	}

	// One message per resolved outage to the single subscriber.
	if result.Sent != 2 {
		t.Errorf("expected 2 sent, got %d", result.Sent)
	}
	for _, n := range deliverer.batches[0] {
		if !strings.Contains(n.Message, "Power Restored") {
			t.Errorf("expected restoration alert, got %q", n.Message)
		}
	}
}

func TestDispatch_NothingChangedSendsNothing(t *testing.T) {
	deliverer := &fakeDeliverer{}
	d := dispatch.New(deliverer)

	result, err := d.Dispatch(context.Background(), "Hisar", sampleChanges(0, 0), subscribers("100", "200", "300"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent != 0 || result.Failed != 0 {
		t.Errorf("expected zero result, got %+v", result)
	}
	if len(deliverer.batches) != 0 {
		t.Error("expected no batch submitted when nothing changed")
	}
}

func TestDispatch_NoSubscribersSendsNothing(t *testing.T) {
	deliverer := &fakeDeliverer{}
	d := dispatch.New(deliverer)

	result, err := d.Dispatch(context.Background(), "Hisar", sampleChanges(2, 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent != 0 || len(deliverer.batches) != 0 {
		t.Error("expected nothing delivered without subscribers")
	}
}

func TestDispatch_DelivererErrorPropagates(t *testing.T) {
	d := dispatch.New(&fakeDeliverer{fail: true})

	result, err := d.Dispatch(context.Background(), "Hisar", sampleChanges(1, 0), subscribers("100"))
	if err == nil {
		t.Fatal("expected error from deliverer")
	}
	if result.Failed != 1 {
		t.Errorf("expected failed count from deliverer result, got %+v", result)
	}
}
