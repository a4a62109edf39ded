package models

import "time"

// IPBlock represents an active or expired block against an IP address
type IPBlock struct {
	ID        string     `db:"id"`
	IPAddress string     `db:"ip_address"`
	BlockedAt time.Time  `db:"blocked_at"`
	ExpiresAt *time.Time `db:"expires_at"` // nil for permanent blocks
	Permanent bool       `db:"permanent"`
	Reason    string     `db:"reason"`
	BlockedBy string     `db:"blocked_by"`
}

// Active reports whether the block is still in force at the given time.
// A non-permanent block with a past expiry is logically absent.
func (b *IPBlock) Active(now time.Time) bool {
	if b.Permanent {
		return true
	}
	return b.ExpiresAt != nil && b.ExpiresAt.After(now)
}

// BlockState describes the blocking status of an IP at login pre-check time
type BlockState struct {
	Blocked   bool
	Permanent bool
	Remaining time.Duration // zero for permanent blocks
}

// WhitelistEntry exempts an IP address or a URI substring from inspection
// and login blocking
type WhitelistEntry struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"` // WhitelistKindIP or WhitelistKindURI
	Value     string    `db:"value"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	WhitelistKindIP  = "ip"
	WhitelistKindURI = "uri"
)
