package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/config"
	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/firewall"
	"github.com/bastionsec/bastion/internal/handlers"
	middlewareCustom "github.com/bastionsec/bastion/internal/middleware"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/routes"
	"github.com/bastionsec/bastion/internal/services"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// SentNotification is a captured operator notification
type SentNotification struct {
	Recipient string
	Subject   string
	Body      string
}

// MockNotifier captures notifications for test assertions
type MockNotifier struct {
	Sent []SentNotification
	mu   sync.Mutex
}

func (m *MockNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = append(m.Sent, SentNotification{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}

// GetLastNotification returns the most recent captured notification
func (m *MockNotifier) GetLastNotification() *SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// StubGeoResolver answers every lookup with a fixed country, avoiding
// outbound calls to ip-api.com from tests
type StubGeoResolver struct {
	Country string
}

func (s *StubGeoResolver) Resolve(ctx context.Context, ip string) (string, error) {
	return s.Country, nil
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Notifier *MockNotifier
	Config   *config.Config

	tokenManager *auth.TokenManager
	logger       *slog.Logger
}

// NewTestServer initializes a complete HTTP server with a real database,
// a stubbed geo resolver and a capturing notifier
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry: 15 * time.Minute,
		},
		Firewall: config.FirewallConfig{
			Enabled:       true,
			InternalCIDRs: nil,
		},
		Throttle: config.ThrottleConfig{
			FailureWindow:    1 * time.Hour,
			AttemptRetention: 30 * 24 * time.Hour,
			EventRetention:   90 * 24 * time.Hour,
			CleanupInterval:  1 * time.Hour,
		},
		Profiler: config.ProfilerConfig{
			Enabled: true,
		},
		Email: config.EmailConfig{
			OperatorEmail: "operator@test.local",
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
	}

	blockRepo, whitelistRepo, attemptRepo, eventRepo,
		profileRepo, anomalyRepo, _, auditRepo := InitializeRepositories(db)

	notifier := &MockNotifier{}
	geoResolver := &StubGeoResolver{Country: "US"}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	auditService := services.NewAuditService(auditRepo, logger)

	throttleService := services.NewThrottleService(
		blockRepo,
		attemptRepo,
		whitelistRepo,
		geoResolver,
		auditService,
		notifier,
		services.ThrottleConfig{
			FailureWindow: cfg.Throttle.FailureWindow,
			Tiers:         services.DefaultTiers(),
			OperatorEmail: cfg.Email.OperatorEmail,
		},
		logger,
	)

	profilerService := services.NewProfilerService(
		profileRepo,
		anomalyRepo,
		geoResolver,
		throttleService,
		notifier,
		auditService,
		services.ProfilerConfig{
			Enabled:       cfg.Profiler.Enabled,
			OperatorEmail: cfg.Email.OperatorEmail,
		},
		logger,
	)

	whitelistService := services.NewWhitelistService(whitelistRepo, auditService)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	firewallService := services.NewFirewallService(
		firewall.NewInspector(),
		eventRepo,
		whitelistRepo,
		auth.NewAdminGate(tokenManager),
		geoResolver,
		ipConfig,
		cfg.Firewall,
		logger,
	)

	loginHandler := handlers.NewLoginGuardHandler(throttleService, profilerService)
	blockHandler := handlers.NewBlockHandler(throttleService, blockRepo)
	whitelistHandler := handlers.NewWhitelistHandler(whitelistService)
	attemptHandler := handlers.NewAttemptHandler(attemptRepo)
	anomalyHandler := handlers.NewAnomalyHandler(profilerService, anomalyRepo)
	eventHandler := handlers.NewEventHandler(eventRepo, auditService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Group(func(gr chi.Router) {
		gr.Use(middlewareCustom.Firewall(firewallService))
		routes.RegisterRoutes(gr, loginHandler, blockHandler, whitelistHandler, attemptHandler, anomalyHandler, eventHandler, tokenManager)
	})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		Notifier:     notifier,
		Config:       cfg,
		tokenManager: tokenManager,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// AdminToken issues a signed admin token for the operator API
func (ts *TestServer) AdminToken() (string, error) {
	return ts.tokenManager.Generate("test-operator", models.RoleAdmin)
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts the error message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
