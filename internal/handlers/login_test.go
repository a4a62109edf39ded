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

func TestPrecheck_AllowedIP(t *testing.T) {
	handler := handlers.NewLoginGuardHandler(&handlers.MockThrottleService{}, &handlers.MockProfilerService{})

	req := handlers.NewTestRequest(t, "POST", "/v1/login/precheck", handlers.PrecheckRequest{IP: "203.0.113.7"})
	w := httptest.NewRecorder()
	handler.Precheck(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPrecheck_TemporarilyBlocked(t *testing.T) {
	throttle := &handlers.MockThrottleService{
		CheckIPFunc: func(ctx context.Context, ip string) (models.BlockState, error) {
			return models.BlockState{Blocked: true, Remaining: 5 * time.Minute}, nil
		},
	}
	handler := handlers.NewLoginGuardHandler(throttle, &handlers.MockProfilerService{})

	req := handlers.NewTestRequest(t, "POST", "/v1/login/precheck", handlers.PrecheckRequest{IP: "203.0.113.7"})
	w := httptest.NewRecorder()
	handler.Precheck(w, req)

	var resp map[string]interface{}
	handlers.AssertJSONResponse(t, w, http.StatusTooManyRequests, &resp)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	assert.EqualValues(t, 300, resp["retry_after_seconds"])
}

func TestPrecheck_PermanentlyBlocked(t *testing.T) {
	throttle := &handlers.MockThrottleService{
		CheckIPFunc: func(ctx context.Context, ip string) (models.BlockState, error) {
			return models.BlockState{Blocked: true, Permanent: true}, nil
		},
	}
	handler := handlers.NewLoginGuardHandler(throttle, &handlers.MockProfilerService{})

	req := handlers.NewTestRequest(t, "POST", "/v1/login/precheck", handlers.PrecheckRequest{IP: "203.0.113.7"})
	w := httptest.NewRecorder()
	handler.Precheck(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusForbidden, "forbidden")
}

func TestPrecheck_InvalidIP(t *testing.T) {
	handler := handlers.NewLoginGuardHandler(&handlers.MockThrottleService{}, &handlers.MockProfilerService{})

	req := handlers.NewTestRequest(t, "POST", "/v1/login/precheck", handlers.PrecheckRequest{IP: "not-an-ip"})
	w := httptest.NewRecorder()
	handler.Precheck(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestReport_FailureRecorded(t *testing.T) {
	var recordedIP string
	throttle := &handlers.MockThrottleService{
		RecordFailureFunc: func(ctx context.Context, ip, identity, userAgent string) error {
			recordedIP = ip
			return nil
		},
	}
	handler := handlers.NewLoginGuardHandler(throttle, &handlers.MockProfilerService{})

	req := handlers.NewTestRequest(t, "POST", "/v1/login/report", handlers.ReportRequest{
		IP:       "203.0.113.7",
		Identity: "bob",
		Success:  false,
	})
	w := httptest.NewRecorder()
	handler.Report(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "203.0.113.7", recordedIP)
}

func TestReport_SuccessWithoutAccountSkipsProfiler(t *testing.T) {
	evaluated := false
	profiler := &handlers.MockProfilerService{
		EvaluateFunc: func(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error) {
			evaluated = true
			return nil, nil
		},
	}
	handler := handlers.NewLoginGuardHandler(&handlers.MockThrottleService{}, profiler)

	req := handlers.NewTestRequest(t, "POST", "/v1/login/report", handlers.ReportRequest{
		IP:       "203.0.113.7",
		Identity: "bob",
		Success:  true,
	})
	w := httptest.NewRecorder()
	handler.Report(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, evaluated)
}

func TestReport_SuccessReturnsAnomalies(t *testing.T) {
	profiler := &handlers.MockProfilerService{
		EvaluateFunc: func(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error) {
			return []*models.Anomaly{{
				ID:          "a-1",
				AccountID:   accountID,
				IPAddress:   ip,
				AnomalyType: models.AnomalyNewCountry,
				Score:       models.ScoreNewCountry,
				Status:      models.AnomalyStatusNew,
			}}, nil
		},
	}
	handler := handlers.NewLoginGuardHandler(&handlers.MockThrottleService{}, profiler)

	req := handlers.NewTestRequest(t, "POST", "/v1/login/report", handlers.ReportRequest{
		IP:        "203.0.113.7",
		Identity:  "bob",
		Success:   true,
		AccountID: "acct-1",
	})
	w := httptest.NewRecorder()
	handler.Report(w, req)

	var resp handlers.ReportResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.Anomalies, 1)
	assert.Equal(t, models.AnomalyNewCountry, resp.Anomalies[0].AnomalyType)
	assert.Equal(t, models.ScoreNewCountry, resp.Anomalies[0].Score)
}

func TestReport_ProfilerFailureDoesNotFailReport(t *testing.T) {
	profiler := &handlers.MockProfilerService{
		EvaluateFunc: func(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error) {
			return nil, assert.AnError
		},
	}
	handler := handlers.NewLoginGuardHandler(&handlers.MockThrottleService{}, profiler)

	req := handlers.NewTestRequest(t, "POST", "/v1/login/report", handlers.ReportRequest{
		IP:        "203.0.113.7",
		Identity:  "bob",
		Success:   true,
		AccountID: "acct-1",
	})
	w := httptest.NewRecorder()
	handler.Report(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestReport_MissingIdentity(t *testing.T) {
	handler := handlers.NewLoginGuardHandler(&handlers.MockThrottleService{}, &handlers.MockProfilerService{})

	req := handlers.NewTestRequest(t, "POST", "/v1/login/report", handlers.ReportRequest{IP: "203.0.113.7"})
	w := httptest.NewRecorder()
	handler.Report(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
