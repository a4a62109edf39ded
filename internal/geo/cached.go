package geo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bastionsec/bastion/internal/models"
)

// CountryCache is the store-backed cache the resolver consults before the
// external provider
type CountryCache interface {
	Get(ctx context.Context, ip string) (string, error)
	Put(ctx context.Context, ip, country string, ttl time.Duration) error
}

// CachedResolver wraps an upstream Resolver with a TTL cache and a hard
// lookup timeout. A timed-out or failed upstream lookup yields an empty
// country, and the miss is not cached so a transient failure heals itself.
type CachedResolver struct {
	upstream Resolver
	cache    CountryCache
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCachedResolver creates a CachedResolver
func NewCachedResolver(upstream Resolver, cache CountryCache, ttl, timeout time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve returns the country code for an IP, never an error: every failure
// degrades to "unknown country" per the dependency-degradation policy.
func (r *CachedResolver) Resolve(ctx context.Context, ip string) (string, error) {
	country, err := r.cache.Get(ctx, ip)
	if err == nil {
		return country, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("geo cache read failed", slog.String("ip", ip), slog.Any("error", err))
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	country, err = r.upstream.Resolve(lookupCtx, ip)
	if err != nil {
		r.logger.Warn("geo lookup degraded to unknown country",
			slog.String("ip", ip), slog.Any("error", err))
		return "", nil
	}

	if err := r.cache.Put(ctx, ip, country, r.ttl); err != nil {
		r.logger.Warn("geo cache write failed", slog.String("ip", ip), slog.Any("error", err))
	}

	return country, nil
}
