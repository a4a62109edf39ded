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

type mockFirewallEventReader struct {
	events []*models.FirewallBlockEvent
}

func (m *mockFirewallEventReader) List(ctx context.Context, limit, offset int) ([]*models.FirewallBlockEvent, error) {
	return m.events, nil
}

func (m *mockFirewallEventReader) Count(ctx context.Context) (int64, error) {
	return int64(len(m.events)), nil
}

type mockAuditTrailReader struct {
	events []*models.AuditEvent
}

func (m *mockAuditTrailReader) Trail(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error) {
	return m.events, nil
}

func TestListFirewallEvents(t *testing.T) {
	events := &mockFirewallEventReader{events: []*models.FirewallBlockEvent{{
		ID:          "fe-1",
		IPAddress:   "203.0.113.9",
		RequestURI:  "/login?q=' OR 1=1--",
		Method:      "GET",
		RuleMatched: "sqli_boolean_tautology",
		IncidentID:  "4f2a9c1d8e3b7a60",
		BlockedAt:   time.Now(),
	}}}
	handler := handlers.NewEventHandler(events, &mockAuditTrailReader{})

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/firewall/events", nil), "op-1")
	w := httptest.NewRecorder()
	handler.ListFirewallEvents(w, req)

	var resp []handlers.FirewallEventResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "sqli_boolean_tautology", resp[0].RuleMatched)
	assert.Len(t, resp[0].IncidentID, 16)
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))
}

func TestListAuditTrail(t *testing.T) {
	audit := &mockAuditTrailReader{events: []*models.AuditEvent{{
		ID:          "ae-1",
		Action:      models.AuditActionBlockIP,
		SubjectType: models.AuditSubjectIP,
		SubjectID:   "203.0.113.9",
		ActorID:     "op-1",
		CreatedAt:   time.Now(),
	}}}
	handler := handlers.NewEventHandler(&mockFirewallEventReader{}, audit)

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/audit", nil), "op-1")
	w := httptest.NewRecorder()
	handler.ListAuditTrail(w, req)

	var resp []handlers.AuditEventResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, models.AuditActionBlockIP, resp[0].Action)
	assert.Equal(t, "op-1", resp[0].ActorID)
}
