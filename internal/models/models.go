package models

import "time"

// OutageRecord is a single scraped entry from the DHBVN portal, valid for
// one poll cycle. All fields are the portal's display strings; start and
// restoration times follow the "DD-Mon-YYYY HH:MM:SS" convention.
type OutageRecord struct {
	Area            string `json:"area"`
	Feeder          string `json:"feeder"`
	StartTime       string `json:"start_time"`
	RestorationTime string `json:"restoration_time"`
	Reason          string `json:"reason"`
}

// OutageSnapshot is the persisted lifecycle of one observed outage.
type OutageSnapshot struct {
	ID              int64     `json:"id" db:"id"`
	DistrictID      int       `json:"district_id" db:"district_id"`
	OutageHash      string    `json:"outage_hash" db:"outage_hash"`
	Area            string    `json:"area" db:"area"`
	Feeder          string    `json:"feeder" db:"feeder"`
	StartTime       time.Time `json:"start_time" db:"start_time"`
	RestorationTime time.Time `json:"restoration_time" db:"restoration_time"`
	Reason          string    `json:"reason" db:"reason"`
	FirstSeen       time.Time `json:"first_seen" db:"first_seen"`
	LastSeen        time.Time `json:"last_seen" db:"last_seen"`
	IsResolved      bool      `json:"is_resolved" db:"is_resolved"`
}

// Platform identifies the chat platform a subscriber is reached on.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
)

// Subscription is one chat recipient subscribed to a district's alerts.
type Subscription struct {
	ID                   int64      `json:"id" db:"id"`
	Platform             Platform   `json:"platform" db:"platform"`
	ChatID               string     `json:"chat_id" db:"chat_id"`
	Username             string     `json:"username" db:"username"`
	DistrictID           int        `json:"district_id" db:"district_id"`
	DistrictName         string     `json:"district_name" db:"district_name"`
	SubscribedAt         time.Time  `json:"subscribed_at" db:"subscribed_at"`
	LastNotificationSent *time.Time `json:"last_notification_sent,omitempty" db:"last_notification_sent"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// Notification is one (recipient, message) pair handed to the delivery layer.
type Notification struct {
	Platform  Platform `json:"platform"`
	Recipient string   `json:"recipient"`
	Message   string   `json:"message"`
}

// BatchResult is the delivery layer's aggregate outcome for one batch.
type BatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DistrictResult is the per-district entry of a poll run report.
type DistrictResult struct {
	DistrictID   int    `json:"districtId"`
	DistrictName string `json:"districtName"`
	Subscribers  int    `json:"subscribers"`
	NewOutages   int    `json:"newOutages"`
	Resolved     int    `json:"resolved"`
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	Error        string `json:"error,omitempty"`
}

// RunTotals aggregates all districts of one poll run.
type RunTotals struct {
	Subscribers int `json:"subscribers"`
	NewOutages  int `json:"newOutages"`
	Resolved    int `json:"resolved"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
}

// RunReport is the contract the cron trigger endpoint returns as its body.
type RunReport struct {
	Status           string           `json:"status"`
	Message          string           `json:"message,omitempty"`
	DurationMs       int64            `json:"duration"`
	DistrictsChecked int              `json:"districtsChecked"`
	Totals           RunTotals        `json:"totals"`
	Details          []DistrictResult `json:"details"`
}
