package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bastionsec/bastion/internal/device"
	"github.com/bastionsec/bastion/internal/models"
)

// ProfileStore persists account login profiles
type ProfileStore interface {
	Get(ctx context.Context, accountID string) (*models.AccountProfile, error)
	Upsert(ctx context.Context, p *models.AccountProfile) error
	Delete(ctx context.Context, accountID string) error
}

// AnomalyStore persists detected anomalies
type AnomalyStore interface {
	Create(ctx context.Context, a *models.Anomaly) (*models.Anomaly, error)
	GetByID(ctx context.Context, id string) (*models.Anomaly, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// impossibleTravelWindow is the maximum gap between two logins from
// different countries that still counts as impossible travel.
const impossibleTravelWindow = 2 * time.Hour

// ProfilerConfig holds profiler settings
type ProfilerConfig struct {
	Enabled       bool
	OperatorEmail string
}

// ProfilerService compares each successful login against the account's
// rolling profile and records scored anomalies for deviations.
type ProfilerService struct {
	profiles  ProfileStore
	anomalies AnomalyStore
	countries CountryLookup
	throttle  *ThrottleService
	notifier  Notifier
	audit     *AuditService
	config    ProfilerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewProfilerService creates a new ProfilerService
func NewProfilerService(
	profiles ProfileStore,
	anomalies AnomalyStore,
	countries CountryLookup,
	throttle *ThrottleService,
	notifier Notifier,
	audit *AuditService,
	cfg ProfilerConfig,
	logger *slog.Logger,
) *ProfilerService {
	return &ProfilerService{
		profiles:  profiles,
		anomalies: anomalies,
		countries: countries,
		throttle:  throttle,
		notifier:  notifier,
		audit:     audit,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluate runs anomaly detection for one successful login and then folds
// the login into the account's profile. The first login for an account
// seeds the profile and is never anomalous. Detection failures are logged,
// not returned: telemetry must never break a login.
func (s *ProfilerService) Evaluate(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error) {
	if !s.config.Enabled {
		return nil, nil
	}

	now := s.now()
	signature := device.Signature(userAgent)
	country, _ := s.countries.Resolve(ctx, ip)

	profile, err := s.profiles.Get(ctx, accountID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		if err := s.seedProfile(ctx, accountID, ip, country, signature, now); err != nil {
			return nil, err
		}
		return nil, nil
	}

	detected := s.detect(profile, ip, country, signature, now)

	var created []*models.Anomaly
	for _, d := range detected {
		d.AccountID = accountID
		d.AccountName = accountName
		d.IPAddress = ip
		d.CountryCode = country
		d.DeviceSignature = signature
		d.DetectedAt = now
		d.Status = models.AnomalyStatusNew

		record, err := s.anomalies.Create(ctx, d)
		if err != nil {
			s.logger.Error("failed to record anomaly",
				slog.String("account_id", accountID),
				slog.String("type", d.AnomalyType),
				slog.Any("error", err),
			)
			continue
		}
		created = append(created, record)

		s.logger.Warn("login anomaly detected",
			slog.String("account_id", accountID),
			slog.String("type", record.AnomalyType),
			slog.Int("score", record.Score),
			slog.String("ip", ip),
		)

		if record.Score >= models.NotifyScoreThreshold {
			s.notifyAnomaly(ctx, record)
		}
	}

	s.applyLogin(ctx, profile, ip, country, signature, now)

	return created, nil
}

// detect returns the anomalies this login triggers against the profile.
// Fields common to all anomalies are filled in by the caller.
func (s *ProfilerService) detect(profile *models.AccountProfile, ip, country, signature string, now time.Time) []*models.Anomaly {
	var out []*models.Anomaly

	if country != "" && profile.LastLoginCountry != "" &&
		country != profile.LastLoginCountry &&
		now.Sub(profile.LastLoginAt) < impossibleTravelWindow {
		out = append(out, &models.Anomaly{
			AnomalyType: models.AnomalyImpossibleTravel,
			Score:       models.ScoreImpossibleTravel,
			Details: fmt.Sprintf("login from %s %s after login from %s",
				country, now.Sub(profile.LastLoginAt).Round(time.Minute), profile.LastLoginCountry),
		})
	}

	if country != "" && !profile.HasCountry(country) {
		out = append(out, &models.Anomaly{
			AnomalyType: models.AnomalyNewCountry,
			Score:       models.ScoreNewCountry,
			Details:     fmt.Sprintf("first login from %s", country),
		})
	}

	if signature != device.UnknownSignature && !profile.HasDevice(signature) {
		out = append(out, &models.Anomaly{
			AnomalyType: models.AnomalyNewDevice,
			Score:       models.ScoreNewDevice,
			Details:     fmt.Sprintf("first login from %s", signature),
		})
	}

	if unusual, mean := unusualHour(profile.LoginHours, now.Hour()); unusual {
		out = append(out, &models.Anomaly{
			AnomalyType: models.AnomalyUnusualTime,
			Score:       models.ScoreUnusualTime,
			Details:     fmt.Sprintf("login at hour %02d, typical hour %.0f", now.Hour(), mean),
		})
	}

	return out
}

// unusualHour reports whether hour deviates more than two standard
// deviations from the profile's mean login hour. It never fires until the
// baseline has enough samples.
func unusualHour(samples []int64, hour int) (bool, float64) {
	if len(samples) < models.MinHourSamples {
		return false, 0
	}

	var sum float64
	for _, h := range samples {
		sum += float64(h)
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, h := range samples {
		variance += (float64(h) - mean) * (float64(h) - mean)
	}
	stddev := math.Sqrt(variance / float64(len(samples)))

	return math.Abs(float64(hour)-mean) > 2*stddev, mean
}

func (s *ProfilerService) seedProfile(ctx context.Context, accountID, ip, country, signature string, now time.Time) error {
	profile := &models.AccountProfile{
		AccountID:        accountID,
		KnownIPs:         models.AppendBounded(nil, ip, models.ProfileMaxIPs),
		KnownCountries:   models.AppendBounded(nil, country, models.ProfileMaxCountries),
		KnownDevices:     models.AppendBounded(nil, signature, models.ProfileMaxDevices),
		LoginHours:       models.AppendHour(nil, now.Hour()),
		LastLoginAt:      now,
		LastLoginIP:      ip,
		LastLoginCountry: country,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return fmt.Errorf("failed to seed profile: %w", err)
	}
	return nil
}

// applyLogin folds the login into the profile. This runs whether or not the
// login was anomalous: repeated use of a new location makes it known.
func (s *ProfilerService) applyLogin(ctx context.Context, profile *models.AccountProfile, ip, country, signature string, now time.Time) {
	profile.KnownIPs = models.AppendBounded(profile.KnownIPs, ip, models.ProfileMaxIPs)
	profile.KnownCountries = models.AppendBounded(profile.KnownCountries, country, models.ProfileMaxCountries)
	profile.KnownDevices = models.AppendBounded(profile.KnownDevices, signature, models.ProfileMaxDevices)
	profile.LoginHours = models.AppendHour(profile.LoginHours, now.Hour())
	profile.LastLoginAt = now
	profile.LastLoginIP = ip
	profile.LastLoginCountry = country

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		s.logger.Error("failed to update profile",
			slog.String("account_id", profile.AccountID),
			slog.Any("error", err),
		)
	}
}

func (s *ProfilerService) notifyAnomaly(ctx context.Context, a *models.Anomaly) {
	if s.notifier == nil || s.config.OperatorEmail == "" {
		return
	}

	subject := fmt.Sprintf("Security alert: %s for account %s", a.AnomalyType, a.AccountID)
	body := fmt.Sprintf(
		"A high-risk login anomaly was detected.\n\n"+
			"Account: %s (%s)\n"+
			"Type: %s\n"+
			"Score: %d\n"+
			"IP address: %s\n"+
			"Country: %s\n"+
			"Device: %s\n"+
			"Detected at: %s\n\n"+
			"Details: %s\n",
		a.AccountID, a.AccountName, a.AnomalyType, a.Score, a.IPAddress,
		a.CountryCode, a.DeviceSignature, a.DetectedAt.Format(time.RFC3339), a.Details,
	)

	if err := s.notifier.Notify(ctx, s.config.OperatorEmail, subject, body); err != nil {
		s.logger.Error("failed to send anomaly notification",
			slog.String("anomaly_id", a.ID),
			slog.Any("error", err),
		)
	}
}

// GetAnomaly returns one anomaly by id
func (s *ProfilerService) GetAnomaly(ctx context.Context, id string) (*models.Anomaly, error) {
	return s.anomalies.GetByID(ctx, id)
}

// MarkSafe resolves an anomaly as a confirmed-legitimate login
func (s *ProfilerService) MarkSafe(ctx context.Context, id, actorID string) error {
	if err := s.anomalies.UpdateStatus(ctx, id, models.AnomalyStatusMarkedSafe); err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditActionAnomalySafe, models.AuditSubjectAnomaly, id, "", actorID)
	return nil
}

// BlockFromAnomaly marks the anomaly blocked and permanently blocks its
// source IP through the throttle's manual path.
func (s *ProfilerService) BlockFromAnomaly(ctx context.Context, id, actorID string) error {
	a, err := s.anomalies.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.anomalies.UpdateStatus(ctx, id, models.AnomalyStatusBlocked); err != nil {
		return err
	}

	reason := fmt.Sprintf("blocked from anomaly %s (%s, score %d)", a.ID, a.AnomalyType, a.Score)
	if err := s.throttle.BlockIP(ctx, a.IPAddress, reason, true, 0, actorID); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditActionAnomalyBlock, models.AuditSubjectAnomaly, id, reason, actorID)
	return nil
}
