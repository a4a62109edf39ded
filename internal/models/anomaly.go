package models

import "time"

// Anomaly types. AnomalyTorVPN is part of the record vocabulary for
// operator tooling; no local detection rule emits it.
const (
	AnomalyImpossibleTravel = "impossible_travel"
	AnomalyTorVPN           = "tor_vpn"
	AnomalyNewCountry       = "new_country"
	AnomalyNewDevice        = "new_device"
	AnomalyUnusualTime      = "unusual_time"
)

// Anomaly statuses
const (
	AnomalyStatusNew        = "new"
	AnomalyStatusMarkedSafe = "marked_safe"
	AnomalyStatusBlocked    = "blocked"
)

// Anomaly scores, 0-100. A score at or above NotifyScoreThreshold triggers
// an operator notification when the record is created.
const (
	ScoreImpossibleTravel = 90
	ScoreNewCountry       = 50
	ScoreNewDevice        = 40
	ScoreUnusualTime      = 30

	NotifyScoreThreshold = 80
)

// Anomaly is a scored deviation from an account's login profile. Created by
// the profiler; mutated only by operator mark-safe / block actions.
type Anomaly struct {
	ID              string    `db:"id"`
	AccountID       string    `db:"account_id"`
	AccountName     string    `db:"account_name"` // display name supplied by the host app
	IPAddress       string    `db:"ip_address"`
	CountryCode     string    `db:"country_code"`
	DeviceSignature string    `db:"device_signature"`
	AnomalyType     string    `db:"anomaly_type"`
	Score           int       `db:"score"`
	Details         string    `db:"details"`
	DetectedAt      time.Time `db:"detected_at"`
	Status          string    `db:"status"`
}

// ValidAnomalyStatus reports whether s is a known anomaly status
func ValidAnomalyStatus(s string) bool {
	switch s {
	case AnomalyStatusNew, AnomalyStatusMarkedSafe, AnomalyStatusBlocked:
		return true
	}
	return false
}
