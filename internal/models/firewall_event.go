package models

import "time"

// FirewallBlockEvent is a write-only audit record, one per blocked request
type FirewallBlockEvent struct {
	ID          string    `db:"id"`
	IPAddress   string    `db:"ip_address"`
	RequestURI  string    `db:"request_uri"`
	Method      string    `db:"method"`
	UserAgent   string    `db:"user_agent"`
	RuleMatched string    `db:"rule_matched"`
	IncidentID  string    `db:"incident_id"`
	BlockedAt   time.Time `db:"blocked_at"`
}
