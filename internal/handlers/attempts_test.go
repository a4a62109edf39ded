package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/handlers"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAttemptLedger struct {
	attempts   []*models.LoginAttempt
	gotSuccess *bool
}

func (m *mockAttemptLedger) List(ctx context.Context, success *bool, limit, offset int) ([]*models.LoginAttempt, error) {
	m.gotSuccess = success
	if success == nil {
		return m.attempts, nil
	}
	var out []*models.LoginAttempt
	for _, a := range m.attempts {
		if a.Success == *success {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAttemptLedger) Count(ctx context.Context, success *bool) (int64, error) {
	attempts, _ := m.List(ctx, success, 0, 0)
	return int64(len(attempts)), nil
}

func TestListAttempts(t *testing.T) {
	ledger := &mockAttemptLedger{attempts: []*models.LoginAttempt{
		{ID: "at-1", IPAddress: "203.0.113.1", Identity: "a@example.com", Success: false, AttemptedAt: time.Now(), CountryCode: "US"},
		{ID: "at-2", IPAddress: "203.0.113.2", Identity: "b@example.com", Success: true, AttemptedAt: time.Now()},
	}}
	handler := handlers.NewAttemptHandler(ledger)

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/attempts", nil), "op-1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp []handlers.AttemptResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp, 2)
	assert.Nil(t, ledger.gotSuccess)
	assert.Equal(t, "US", resp[0].CountryCode)
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
}

func TestListAttempts_FilterFailures(t *testing.T) {
	ledger := &mockAttemptLedger{attempts: []*models.LoginAttempt{
		{ID: "at-1", IPAddress: "203.0.113.1", Success: false, AttemptedAt: time.Now()},
		{ID: "at-2", IPAddress: "203.0.113.2", Success: true, AttemptedAt: time.Now()},
	}}
	handler := handlers.NewAttemptHandler(ledger)

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/attempts?success=false", nil), "op-1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp []handlers.AttemptResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "at-1", resp[0].ID)
	require.NotNil(t, ledger.gotSuccess)
	assert.False(t, *ledger.gotSuccess)
}

func TestListAttempts_InvalidFilter(t *testing.T) {
	handler := handlers.NewAttemptHandler(&mockAttemptLedger{})

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/attempts?success=maybe", nil), "op-1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
