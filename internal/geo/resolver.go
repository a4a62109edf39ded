// Package geo resolves IP addresses to ISO country codes. Lookups are
// best-effort: every failure mode degrades to an empty country, never to an
// error on a request-handling path.
package geo

import "context"

// Resolver resolves an IP address to an ISO 3166-1 alpha-2 country code.
// An empty string means "unknown" and is a valid, non-error result.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (string, error)
}
