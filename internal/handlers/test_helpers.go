package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin operator claims to the request context
func WithAdminContext(req *http.Request, subjectID string) *http.Request {
	claims := &models.TokenClaims{
		SubjectID: subjectID,
		Role:      models.RoleAdmin,
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockThrottleService implements ThrottleServiceInterface and
// BlockAdminInterface for testing
type MockThrottleService struct {
	CheckIPFunc       func(ctx context.Context, ip string) (models.BlockState, error)
	RecordFailureFunc func(ctx context.Context, ip, identity, userAgent string) error
	RecordSuccessFunc func(ctx context.Context, ip, identity, userAgent string) error
	BlockIPFunc       func(ctx context.Context, ip, reason string, permanent bool, durationIfTemp time.Duration, actorID string) error
	UnblockIPFunc     func(ctx context.Context, ip, actorID string) error
}

func (m *MockThrottleService) CheckIP(ctx context.Context, ip string) (models.BlockState, error) {
	if m.CheckIPFunc == nil {
		return models.BlockState{}, nil
	}
	return m.CheckIPFunc(ctx, ip)
}

func (m *MockThrottleService) RecordFailure(ctx context.Context, ip, identity, userAgent string) error {
	if m.RecordFailureFunc == nil {
		return nil
	}
	return m.RecordFailureFunc(ctx, ip, identity, userAgent)
}

func (m *MockThrottleService) RecordSuccess(ctx context.Context, ip, identity, userAgent string) error {
	if m.RecordSuccessFunc == nil {
		return nil
	}
	return m.RecordSuccessFunc(ctx, ip, identity, userAgent)
}

func (m *MockThrottleService) BlockIP(ctx context.Context, ip, reason string, permanent bool, durationIfTemp time.Duration, actorID string) error {
	if m.BlockIPFunc == nil {
		return nil
	}
	return m.BlockIPFunc(ctx, ip, reason, permanent, durationIfTemp, actorID)
}

func (m *MockThrottleService) UnblockIP(ctx context.Context, ip, actorID string) error {
	if m.UnblockIPFunc == nil {
		return nil
	}
	return m.UnblockIPFunc(ctx, ip, actorID)
}

// MockProfilerService implements ProfilerServiceInterface for testing
type MockProfilerService struct {
	EvaluateFunc func(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error)
}

func (m *MockProfilerService) Evaluate(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error) {
	if m.EvaluateFunc == nil {
		return nil, nil
	}
	return m.EvaluateFunc(ctx, accountID, accountName, ip, userAgent)
}
