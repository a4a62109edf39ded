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

type mockAnomalyReader struct {
	anomalies []*models.Anomaly
	gotStatus string
}

func (m *mockAnomalyReader) List(ctx context.Context, status string, limit, offset int) ([]*models.Anomaly, error) {
	m.gotStatus = status
	return m.anomalies, nil
}

func (m *mockAnomalyReader) Count(ctx context.Context, status string) (int64, error) {
	return int64(len(m.anomalies)), nil
}

type mockAnomalyAdmin struct {
	anomaly    *models.Anomaly
	markedSafe []string
	blocked    []string
}

func (m *mockAnomalyAdmin) GetAnomaly(ctx context.Context, id string) (*models.Anomaly, error) {
	if m.anomaly == nil || m.anomaly.ID != id {
		return nil, models.ErrNotFound
	}
	return m.anomaly, nil
}

func (m *mockAnomalyAdmin) MarkSafe(ctx context.Context, id, actorID string) error {
	m.markedSafe = append(m.markedSafe, id)
	return nil
}

func (m *mockAnomalyAdmin) BlockFromAnomaly(ctx context.Context, id, actorID string) error {
	m.blocked = append(m.blocked, id)
	return nil
}

func TestListAnomalies(t *testing.T) {
	reader := &mockAnomalyReader{anomalies: []*models.Anomaly{{
		ID:          "a-1",
		AccountID:   "acct-1",
		IPAddress:   "203.0.113.7",
		AnomalyType: models.AnomalyImpossibleTravel,
		Score:       models.ScoreImpossibleTravel,
		DetectedAt:  time.Now(),
		Status:      models.AnomalyStatusNew,
	}}}
	handler := handlers.NewAnomalyHandler(&mockAnomalyAdmin{}, reader)

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/anomalies?status=new", nil), "op-1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp []handlers.AnomalyResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, models.AnomalyImpossibleTravel, resp[0].AnomalyType)
	assert.Equal(t, "new", reader.gotStatus)
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))
}

func TestListAnomalies_InvalidStatus(t *testing.T) {
	handler := handlers.NewAnomalyHandler(&mockAnomalyAdmin{}, &mockAnomalyReader{})

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/anomalies?status=bogus", nil), "op-1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestGetAnomaly(t *testing.T) {
	admin := &mockAnomalyAdmin{anomaly: &models.Anomaly{
		ID:          "a-1",
		AccountID:   "acct-1",
		IPAddress:   "203.0.113.7",
		AnomalyType: models.AnomalyNewCountry,
		Score:       models.ScoreNewCountry,
		DetectedAt:  time.Now(),
		Status:      models.AnomalyStatusNew,
	}}
	handler := handlers.NewAnomalyHandler(admin, &mockAnomalyReader{})

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/anomalies/a-1", nil), "op-1")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "a-1"})
	w := httptest.NewRecorder()
	handler.Get(w, req)

	var resp handlers.AnomalyResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "a-1", resp.ID)
	assert.Equal(t, models.AnomalyNewCountry, resp.AnomalyType)
}

func TestGetAnomaly_NotFound(t *testing.T) {
	handler := handlers.NewAnomalyHandler(&mockAnomalyAdmin{}, &mockAnomalyReader{})

	req := handlers.WithAdminContext(httptest.NewRequest("GET", "/v1/anomalies/missing", nil), "op-1")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "missing"})
	w := httptest.NewRecorder()
	handler.Get(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestMarkAnomalySafe(t *testing.T) {
	admin := &mockAnomalyAdmin{}
	handler := handlers.NewAnomalyHandler(admin, &mockAnomalyReader{})

	req := httptest.NewRequest("POST", "/v1/anomalies/a-1/safe", nil)
	req = handlers.WithAdminContext(req, "op-1")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "a-1"})
	w := httptest.NewRecorder()
	handler.MarkSafe(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"a-1"}, admin.markedSafe)
}

func TestBlockAnomaly(t *testing.T) {
	admin := &mockAnomalyAdmin{}
	handler := handlers.NewAnomalyHandler(admin, &mockAnomalyReader{})

	req := httptest.NewRequest("POST", "/v1/anomalies/a-1/block", nil)
	req = handlers.WithAdminContext(req, "op-1")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "a-1"})
	w := httptest.NewRecorder()
	handler.Block(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"a-1"}, admin.blocked)
}
