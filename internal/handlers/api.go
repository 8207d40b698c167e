package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"dhbvn-alerts/internal/cache"
	"dhbvn-alerts/internal/database"
	"dhbvn-alerts/internal/dhbvn"
	"dhbvn-alerts/internal/district"
	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/poller"
)

type Handlers struct {
	DB      *database.DB
	Cache   *cache.Cache
	Scraper *dhbvn.Client
	Poller  *poller.Poller

	CronSecret     string
	OutageCacheTTL time.Duration
}

// RegisterRoutes registers all API routes on the given Fiber app group.
func (h *Handlers) RegisterRoutes(api fiber.Router) {
	api.Get("/districts", h.GetDistricts)
	api.Get("/outages/:district", h.GetOutages)
	api.Get("/snapshots/:district", h.GetSnapshots)
	api.Get("/stats", h.GetStats)
	api.Post("/cron/check-outages", h.RunPoll)
}

// GetDistricts returns the fixed district reference list.
func (h *Handlers) GetDistricts(c *fiber.Ctx) error {
	result := make([]fiber.Map, 0, len(district.All))
	for _, d := range district.All {
		result = append(result, fiber.Map{"id": d.ID, "name": d.Name})
	}
	return c.JSON(result)
}

// GetOutages returns the district's live outage list from the portal.
// Responses are cached in Redis so dashboard visitors don't hammer the
// upstream between polls.
func (h *Handlers) GetOutages(c *fiber.Ctx) error {
	districtID, err := c.ParamsInt("district")
	if err != nil || !district.Valid(districtID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid district id"})
	}

	ctx := c.Context()
	if cached, err := h.Cache.GetOutagesJSON(ctx, districtID); err == nil && cached != "" {
		c.Set("Content-Type", "application/json")
		return c.SendString(cached)
	}

	records, err := h.Scraper.FetchOutages(ctx, districtID)
	if err != nil {
		log.Printf("[api] scrape failed for district %d: %v", districtID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to fetch outages"})
	}
	if records == nil {
		records = []models.OutageRecord{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "marshal error"})
	}
	if err := h.Cache.SetOutagesJSON(ctx, districtID, string(data), h.OutageCacheTTL); err != nil {
		log.Printf("[api] cache write failed for district %d: %v", districtID, err)
	}

	c.Set("Content-Type", "application/json")
	return c.Send(data)
}

// GetSnapshots returns the persisted active outage set for a district.
func (h *Handlers) GetSnapshots(c *fiber.Ctx) error {
	districtID, err := c.ParamsInt("district")
	if err != nil || !district.Valid(districtID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid district id"})
	}

	snapshots, err := h.DB.GetActiveOutages(c.Context(), districtID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load snapshots"})
	}
	if snapshots == nil {
		snapshots = []models.OutageSnapshot{}
	}

	return c.JSON(fiber.Map{
		"district_id":   districtID,
		"district_name": district.Name(districtID),
		"outages":       snapshots,
	})
}

// GetStats returns snapshot and subscription counters for monitoring.
func (h *Handlers) GetStats(c *fiber.Ctx) error {
	ctx := c.Context()
	outageStats, err := h.DB.GetOutageStats(ctx, c.QueryInt("district"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load outage stats"})
	}
	subStats, err := h.DB.GetSubscriptionStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load subscription stats"})
	}
	return c.JSON(fiber.Map{
		"outages":       outageStats,
		"subscriptions": subStats,
	})
}

// RunPoll triggers one poll cycle and returns the run report as the
// response body. Guarded by a bearer secret when one is configured.
func (h *Handlers) RunPoll(c *fiber.Ctx) error {
	if h.CronSecret != "" && c.Get("Authorization") != "Bearer "+h.CronSecret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	report, err := h.Poller.RunPoll(context.Background())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(report)
	}
	return c.JSON(report)
}
