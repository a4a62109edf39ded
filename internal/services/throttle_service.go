package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bastionsec/bastion/internal/models"
)

// BlockStore defines the IP reputation store operations the throttle needs
type BlockStore interface {
	Upsert(ctx context.Context, block *models.IPBlock) error
	Get(ctx context.Context, ip string) (*models.IPBlock, error)
	Delete(ctx context.Context, ip string) error
}

// AttemptLedger defines the attempt-ledger operations the throttle needs
type AttemptLedger interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, ip string, since time.Time) (int, error)
	ClearFailures(ctx context.Context, ip string) error
}

// IPWhitelist checks whether an IP is exempt from blocking
type IPWhitelist interface {
	ContainsIP(ctx context.Context, ip string) (bool, error)
}

// CountryLookup resolves an IP to a country code, best-effort
type CountryLookup interface {
	Resolve(ctx context.Context, ip string) (string, error)
}

// Tier is one escalation level of the blocking policy. Tiers are evaluated
// highest-threshold-first so a burst that crosses several thresholds lands
// on the strictest lockout.
type Tier struct {
	Threshold int
	Duration  time.Duration
	Notify    bool
}

// DefaultTiers returns the escalation ladder: 5 failures/hour for 5 minutes,
// 10 for 30 minutes, 20 for 24 hours with an operator notification.
func DefaultTiers() []Tier {
	return []Tier{
		{Threshold: 20, Duration: 24 * time.Hour, Notify: true},
		{Threshold: 10, Duration: 30 * time.Minute},
		{Threshold: 5, Duration: 5 * time.Minute},
	}
}

// ThrottleConfig holds throttle policy settings
type ThrottleConfig struct {
	FailureWindow time.Duration // trailing window for failure counts
	Tiers         []Tier
	OperatorEmail string
}

// ThrottleService implements the escalating login-blocking state machine.
// Per-IP state is derived from attempt counts and block presence, never
// stored; concurrent evaluations for one IP race benignly (both may write
// the same tier, neither can miss a block).
type ThrottleService struct {
	blocks    BlockStore
	ledger    AttemptLedger
	whitelist IPWhitelist
	countries CountryLookup
	audit     *AuditService
	notifier  Notifier
	config    ThrottleConfig
	logger    *slog.Logger
}

// NewThrottleService creates a new ThrottleService
func NewThrottleService(
	blocks BlockStore,
	ledger AttemptLedger,
	whitelist IPWhitelist,
	countries CountryLookup,
	audit *AuditService,
	notifier Notifier,
	config ThrottleConfig,
	logger *slog.Logger,
) *ThrottleService {
	if len(config.Tiers) == 0 {
		config.Tiers = DefaultTiers()
	}
	return &ThrottleService{
		blocks:    blocks,
		ledger:    ledger,
		whitelist: whitelist,
		countries: countries,
		audit:     audit,
		notifier:  notifier,
		config:    config,
		logger:    logger,
	}
}

// CheckIP is the pre-check contract, run before any credential validation.
// A whitelisted IP always resolves to unblocked. A lapsed block is deleted
// on the way through and its failure history cleared (lazy expiry).
func (s *ThrottleService) CheckIP(ctx context.Context, ip string) (models.BlockState, error) {
	whitelisted, err := s.whitelist.ContainsIP(ctx, ip)
	if err != nil {
		return models.BlockState{}, fmt.Errorf("whitelist check failed: %w", err)
	}
	if whitelisted {
		return models.BlockState{}, nil
	}

	block, err := s.blocks.Get(ctx, ip)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.BlockState{}, nil
		}
		return models.BlockState{}, fmt.Errorf("block lookup failed: %w", err)
	}

	now := time.Now()
	if !block.Active(now) {
		if err := s.blocks.Delete(ctx, ip); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("failed to remove lapsed block", slog.String("ip", ip), slog.Any("error", err))
		}
		if err := s.ledger.ClearFailures(ctx, ip); err != nil {
			s.logger.Warn("failed to clear failures for lapsed block", slog.String("ip", ip), slog.Any("error", err))
		}
		return models.BlockState{}, nil
	}

	if block.Permanent {
		return models.BlockState{Blocked: true, Permanent: true}, nil
	}

	return models.BlockState{
		Blocked:   true,
		Remaining: block.ExpiresAt.Sub(now),
	}, nil
}

// RecordFailure is the post-check contract for a failed credential check:
// append the attempt (with best-effort country) and evaluate tier
// escalation over the trailing window.
func (s *ThrottleService) RecordFailure(ctx context.Context, ip, identity, userAgent string) error {
	country, _ := s.countries.Resolve(ctx, ip)

	attempt := &models.LoginAttempt{
		IPAddress:   ip,
		Identity:    identity,
		Success:     false,
		UserAgent:   userAgent,
		CountryCode: country,
	}
	if err := s.ledger.Record(ctx, attempt); err != nil {
		// Telemetry fails open: a lost attempt record must not fail the
		// login flow, but it is a security-relevant gap.
		s.logger.Error("failed to record login attempt", slog.String("ip", ip), slog.Any("error", err))
		return nil
	}

	return s.evaluateTiers(ctx, ip)
}

// RecordSuccess is the post-check contract for a successful login: append
// the attempt and clear the IP's failure history. One success resets the
// escalation ladder so a user who eventually types the right password is
// not punished for earlier typos.
func (s *ThrottleService) RecordSuccess(ctx context.Context, ip, identity, userAgent string) error {
	country, _ := s.countries.Resolve(ctx, ip)

	attempt := &models.LoginAttempt{
		IPAddress:   ip,
		Identity:    identity,
		Success:     true,
		UserAgent:   userAgent,
		CountryCode: country,
	}
	if err := s.ledger.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.String("ip", ip), slog.Any("error", err))
	}

	if err := s.ledger.ClearFailures(ctx, ip); err != nil {
		return fmt.Errorf("failed to clear failure history: %w", err)
	}

	return nil
}

func (s *ThrottleService) evaluateTiers(ctx context.Context, ip string) error {
	whitelisted, err := s.whitelist.ContainsIP(ctx, ip)
	if err != nil {
		return fmt.Errorf("whitelist check failed: %w", err)
	}
	if whitelisted {
		return nil
	}

	since := time.Now().Add(-s.config.FailureWindow)
	failures, err := s.ledger.CountRecentFailures(ctx, ip, since)
	if err != nil {
		return fmt.Errorf("failed to count failures: %w", err)
	}

	for _, tier := range s.config.Tiers {
		if failures < tier.Threshold {
			continue
		}

		expiresAt := time.Now().Add(tier.Duration)
		block := &models.IPBlock{
			IPAddress: ip,
			ExpiresAt: &expiresAt,
			Reason:    fmt.Sprintf("%d failed login attempts within %s", failures, s.config.FailureWindow),
			BlockedBy: "system",
		}
		if err := s.blocks.Upsert(ctx, block); err != nil {
			return fmt.Errorf("failed to write block: %w", err)
		}

		s.logger.Warn("ip blocked for repeated login failures",
			slog.String("ip", ip),
			slog.Int("failures", failures),
			slog.Duration("duration", tier.Duration),
		)
		s.audit.Record(ctx, models.AuditActionAutoBlockIP, models.AuditSubjectIP, ip, block.Reason, "system")

		if tier.Notify {
			s.notifyLockout(ctx, ip, failures, tier.Duration)
		}
		return nil
	}

	return nil
}

func (s *ThrottleService) notifyLockout(ctx context.Context, ip string, failures int, duration time.Duration) {
	if s.config.OperatorEmail == "" {
		return
	}
	subject := fmt.Sprintf("Login lockout: %s blocked for %s", ip, duration)
	body := fmt.Sprintf(
		"IP address %s has been blocked for %s after %d failed login attempts within %s.\n",
		ip, duration, failures, s.config.FailureWindow)
	if err := s.notifier.Notify(ctx, s.config.OperatorEmail, subject, body); err != nil {
		s.logger.Error("failed to send lockout notification", slog.String("ip", ip), slog.Any("error", err))
	}
}

// BlockIP is the manual operator block path; it bypasses tier logic
func (s *ThrottleService) BlockIP(ctx context.Context, ip, reason string, permanent bool, durationIfTemp time.Duration, actorID string) error {
	block := &models.IPBlock{
		IPAddress: ip,
		Permanent: permanent,
		Reason:    reason,
		BlockedBy: actorID,
	}
	if !permanent {
		expiresAt := time.Now().Add(durationIfTemp)
		block.ExpiresAt = &expiresAt
	}

	if err := s.blocks.Upsert(ctx, block); err != nil {
		return fmt.Errorf("failed to block ip: %w", err)
	}

	s.audit.Record(ctx, models.AuditActionBlockIP, models.AuditSubjectIP, ip, reason, actorID)
	return nil
}

// UnblockIP removes a block and clears failure history so the IP does not
// immediately re-trip a stale threshold. Unblocking an IP that is not
// blocked is a no-op.
func (s *ThrottleService) UnblockIP(ctx context.Context, ip, actorID string) error {
	if err := s.blocks.Delete(ctx, ip); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to unblock ip: %w", err)
	}

	if err := s.ledger.ClearFailures(ctx, ip); err != nil {
		return fmt.Errorf("failed to clear failure history: %w", err)
	}

	s.audit.Record(ctx, models.AuditActionUnblockIP, models.AuditSubjectIP, ip, "", actorID)
	return nil
}
