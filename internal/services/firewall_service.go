package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/bastionsec/bastion/internal/config"
	"github.com/bastionsec/bastion/internal/firewall"
	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

const maxInspectedBody = 1 << 20 // 1 MiB

// BlockEventStore persists firewall block events
type BlockEventStore interface {
	Record(ctx context.Context, event *models.FirewallBlockEvent) error
}

// RequestWhitelist exposes the exemption list to the firewall
type RequestWhitelist interface {
	ContainsIP(ctx context.Context, ip string) (bool, error)
	URISubstrings(ctx context.Context) ([]string, error)
}

// AdminChecker reports whether a request is authenticated as an
// administrator, for the documented admin bypass
type AdminChecker interface {
	IsAdmin(r *http.Request) bool
}

// FirewallService applies the request inspector to inbound traffic, plus
// the config-gated rate-limit and country-block layers that run before
// signature matching.
type FirewallService struct {
	inspector *firewall.Inspector
	events    BlockEventStore
	whitelist RequestWhitelist
	admin     AdminChecker
	countries CountryLookup
	ipConfig  *pkghttp.IPConfig
	config    config.FirewallConfig
	limiter   *httprate.RateLimiter
	logger    *slog.Logger
}

// NewFirewallService creates a new FirewallService
func NewFirewallService(
	inspector *firewall.Inspector,
	events BlockEventStore,
	whitelist RequestWhitelist,
	admin AdminChecker,
	countries CountryLookup,
	ipConfig *pkghttp.IPConfig,
	cfg config.FirewallConfig,
	logger *slog.Logger,
) *FirewallService {
	s := &FirewallService{
		inspector: inspector,
		events:    events,
		whitelist: whitelist,
		admin:     admin,
		countries: countries,
		ipConfig:  ipConfig,
		config:    cfg,
		logger:    logger,
	}
	if cfg.RateLimitingEnabled {
		// Fixed 60-second window, atomic increment-with-expiry counter.
		// Allows up to 2x burst at window boundaries; accepted
		// approximation.
		s.limiter = httprate.NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
	}
	return s
}

// Screen inspects one request. It returns true when the request was blocked
// and a response has been written; no further application code may run.
func (s *FirewallService) Screen(w http.ResponseWriter, r *http.Request) bool {
	if !s.config.Enabled {
		return false
	}

	ip := pkghttp.ExtractClientIP(r, s.ipConfig)
	ctx := r.Context()

	// Internal/background contexts skip inspection entirely
	if pkghttp.IPInRanges(ip, s.config.InternalCIDRs) {
		return false
	}

	// Documented tradeoff: an authenticated administrator's requests are
	// not inspected, trading self-protection for throughput.
	if s.admin != nil && s.admin.IsAdmin(r) {
		return false
	}

	if bypass, err := s.whitelist.ContainsIP(ctx, ip); err != nil {
		s.logger.Error("ip whitelist check failed", slog.String("ip", ip), slog.Any("error", err))
	} else if bypass {
		return false
	}

	if s.uriWhitelisted(ctx, r.RequestURI) {
		return false
	}

	if s.limiter != nil {
		// The limiter stamps X-RateLimit-* diagnostics on whatever writer
		// it is given; keep them off screened responses so passes and
		// blocks stay uniform.
		if s.limiter.OnLimit(&headerSink{}, r, ip) {
			return s.block(w, r, ip, firewall.RuleRateLimitExceeded)
		}
	}

	if s.config.CountryBlockingEnabled {
		if country, _ := s.countries.Resolve(ctx, ip); country != "" && s.countryBlocked(country) {
			return s.block(w, r, ip, firewall.RuleBlockedCountry)
		}
	}

	surfaces := s.extractSurfaces(r)
	if rule, matched := s.inspector.Inspect(surfaces); matched {
		return s.block(w, r, ip, rule)
	}

	return false
}

func (s *FirewallService) uriWhitelisted(ctx context.Context, uri string) bool {
	substrings, err := s.whitelist.URISubstrings(ctx)
	if err != nil {
		s.logger.Error("uri whitelist lookup failed", slog.Any("error", err))
		return false
	}
	for _, sub := range substrings {
		if sub != "" && strings.Contains(uri, sub) {
			return true
		}
	}
	return false
}

func (s *FirewallService) countryBlocked(country string) bool {
	for _, blocked := range s.config.BlockedCountries {
		if strings.EqualFold(country, blocked) {
			return true
		}
	}
	return false
}

// extractSurfaces parses the request's inspectable inputs. The body is
// buffered and restored so the host application can still read it when the
// request passes.
func (s *FirewallService) extractSurfaces(r *http.Request) firewall.Surfaces {
	if r.Body == nil || r.ContentLength == 0 {
		r.Form = r.URL.Query()
		return firewall.SurfacesFromRequest(r)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
	if err != nil {
		s.logger.Warn("failed to read request body for inspection", slog.Any("error", err))
		r.Form = r.URL.Query()
		return firewall.SurfacesFromRequest(r)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		surfaces := firewall.SurfacesFromRequest(r)
		surfaces.Fields = r.URL.Query()
		var decoded map[string]interface{}
		if err := json.Unmarshal(body, &decoded); err == nil {
			surfaces.JSON = decoded
		}
		return surfaces
	case "multipart/form-data":
		// ParseMultipartForm folds part values into r.Form
		if err := r.ParseMultipartForm(maxInspectedBody); err != nil {
			s.logger.Warn("failed to parse multipart form for inspection", slog.Any("error", err))
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		return firewall.SurfacesFromRequest(r)
	default:
		if err := r.ParseForm(); err != nil {
			s.logger.Warn("failed to parse form for inspection", slog.Any("error", err))
		}
		// ParseForm consumed the restored body; restore again for the app
		r.Body = io.NopCloser(bytes.NewReader(body))
		return firewall.SurfacesFromRequest(r)
	}
}

// headerSink is a ResponseWriter that swallows everything written to it
type headerSink struct {
	h http.Header
}

func (s *headerSink) Header() http.Header {
	if s.h == nil {
		s.h = make(http.Header)
	}
	return s.h
}

func (s *headerSink) Write(b []byte) (int, error) { return len(b), nil }

func (s *headerSink) WriteHeader(statusCode int) {}

// block persists the event and writes the fixed 403 page. The write happens
// before the response so the 403 reflects an already-persisted decision; a
// persistence failure still blocks (fail closed).
func (s *FirewallService) block(w http.ResponseWriter, r *http.Request, ip, rule string) bool {
	incidentID := incidentID(ip, time.Now())

	event := &models.FirewallBlockEvent{
		IPAddress:   ip,
		RequestURI:  r.RequestURI,
		Method:      r.Method,
		UserAgent:   r.UserAgent(),
		RuleMatched: rule,
		IncidentID:  incidentID,
	}

	if err := s.events.Record(r.Context(), event); err != nil {
		s.logger.Error("failed to persist firewall block event",
			slog.String("ip", ip),
			slog.String("rule", rule),
			slog.Any("error", err),
		)
	}

	s.logger.Warn("request blocked",
		slog.String("ip", ip),
		slog.String("rule", rule),
		slog.String("method", r.Method),
		slog.String("uri", r.RequestURI),
		slog.String("incident_id", incidentID),
	)

	writeBlockedPage(w, incidentID)
	return true
}

// incidentID derives an opaque correlation id from the client IP and block
// time
func incidentID(ip string, at time.Time) string {
	sum := sha256.Sum256([]byte(ip + at.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf("%x", sum)[:16]
}

// writeBlockedPage emits the fixed, deliberately terse 403 response. It
// gives an attacker nothing about which check failed.
func writeBlockedPage(w http.ResponseWriter, incidentID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>403 Forbidden</title></head>
<body>
<h1>Access Denied</h1>
<p>Your request was blocked by the security policy.</p>
<p>Incident ID: %s</p>
</body>
</html>
`, incidentID)
}
