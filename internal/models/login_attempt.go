package models

import "time"

// LoginAttempt is one append-only row in the attempt ledger. Rows are never
// updated; failed rows for an IP are deleted in bulk when that IP succeeds.
type LoginAttempt struct {
	ID          string    `db:"id"`
	IPAddress   string    `db:"ip_address"`
	Identity    string    `db:"identity"` // username attempted
	Success     bool      `db:"success"`
	AttemptedAt time.Time `db:"attempted_at"`
	UserAgent   string    `db:"user_agent"`
	CountryCode string    `db:"country_code"` // best-effort, may be empty
}
