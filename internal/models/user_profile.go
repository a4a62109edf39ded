package models

import "time"

// Bounded-list caps for account profiles. Lists evict oldest-first once the
// cap is reached; the profile is a decaying summary, not a full history.
const (
	ProfileMaxIPs       = 10
	ProfileMaxCountries = 10
	ProfileMaxDevices   = 10
	ProfileMaxHours     = 20

	// MinHourSamples is the baseline required before unusual-time detection
	// may fire.
	MinHourSamples = 5
)

// AccountProfile is the behavioral profiler's rolling summary of one
// account's historically observed login context.
type AccountProfile struct {
	AccountID        string    `db:"account_id"`
	KnownIPs         []string  `db:"known_ips"`
	KnownCountries   []string  `db:"known_countries"`
	KnownDevices     []string  `db:"known_devices"`
	LoginHours       []int64   `db:"login_hours"` // hour-of-day samples, 0-23
	LastLoginAt      time.Time `db:"last_login_at"`
	LastLoginIP      string    `db:"last_login_ip"`
	LastLoginCountry string    `db:"last_login_country"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// HasIP reports whether ip is in the profile's bounded known-IP list
func (p *AccountProfile) HasIP(ip string) bool {
	return containsString(p.KnownIPs, ip)
}

// HasCountry reports whether country is in the bounded known-country list
func (p *AccountProfile) HasCountry(country string) bool {
	return containsString(p.KnownCountries, country)
}

// HasDevice reports whether sig is in the bounded known-device list
func (p *AccountProfile) HasDevice(sig string) bool {
	return containsString(p.KnownDevices, sig)
}

// AppendBounded appends value to list if absent, evicting the oldest entry
// once cap is exceeded.
func AppendBounded(list []string, value string, cap int) []string {
	if value == "" || containsString(list, value) {
		return list
	}
	list = append(list, value)
	if len(list) > cap {
		list = list[len(list)-cap:]
	}
	return list
}

// AppendHour appends an hour-of-day sample, evicting the oldest once the cap
// is exceeded. Unlike the identity lists, duplicates are kept: the samples
// feed a mean/stddev baseline.
func AppendHour(hours []int64, hour int) []int64 {
	hours = append(hours, int64(hour))
	if len(hours) > ProfileMaxHours {
		hours = hours[len(hours)-ProfileMaxHours:]
	}
	return hours
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
