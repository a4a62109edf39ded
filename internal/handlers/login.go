package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// ThrottleServiceInterface defines the login-guard operations the handler needs
type ThrottleServiceInterface interface {
	CheckIP(ctx context.Context, ip string) (models.BlockState, error)
	RecordFailure(ctx context.Context, ip, identity, userAgent string) error
	RecordSuccess(ctx context.Context, ip, identity, userAgent string) error
}

// ProfilerServiceInterface defines the anomaly-detection entry point
type ProfilerServiceInterface interface {
	Evaluate(ctx context.Context, accountID, accountName, ip, userAgent string) ([]*models.Anomaly, error)
}

// LoginGuardHandler handles the host application's login guard calls:
// a pre-check before credential validation and a report afterwards.
type LoginGuardHandler struct {
	throttle ThrottleServiceInterface
	profiler ProfilerServiceInterface
}

// NewLoginGuardHandler creates a new LoginGuardHandler
func NewLoginGuardHandler(throttle ThrottleServiceInterface, profiler ProfilerServiceInterface) *LoginGuardHandler {
	return &LoginGuardHandler{
		throttle: throttle,
		profiler: profiler,
	}
}

// PrecheckRequest represents the request body for a login pre-check
type PrecheckRequest struct {
	IP string `json:"ip" validate:"required,ip"`
}

// ReportRequest represents the request body for a login outcome report
type ReportRequest struct {
	IP          string `json:"ip" validate:"required,ip"`
	Identity    string `json:"identity" validate:"required,max=255"`
	Success     bool   `json:"success"`
	UserAgent   string `json:"user_agent" validate:"max=1024"`
	AccountID   string `json:"account_id,omitempty" validate:"omitempty,max=255"`
	AccountName string `json:"account_name,omitempty" validate:"omitempty,max=255"`
}

// ReportResponse carries anomalies fired by a successful login
type ReportResponse struct {
	Anomalies []AnomalyResponse `json:"anomalies"`
}

// Precheck answers whether a login attempt from an IP may proceed.
// 204: proceed. 429: temporarily blocked, with Retry-After. 403: permanently
// blocked.
func (h *LoginGuardHandler) Precheck(w http.ResponseWriter, r *http.Request) {
	var req PrecheckRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	state, err := h.throttle.CheckIP(r.Context(), req.IP)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if !state.Blocked {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if state.Permanent {
		pkghttp.WriteForbidden(w, "This IP address is permanently blocked")
		return
	}

	retryAfter := int(state.Remaining.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	pkghttp.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
		"error":               "ip_blocked",
		"message":             "Too many failed login attempts. Please try again later.",
		"retry_after_seconds": retryAfter,
	})
}

// Report records one login outcome. Failures feed the escalation ladder;
// successes clear it and, when an account id is supplied, run anomaly
// detection against the account's profile.
func (h *LoginGuardHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()

	if !req.Success {
		if err := h.throttle.RecordFailure(ctx, req.IP, req.Identity, req.UserAgent); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.throttle.RecordSuccess(ctx, req.IP, req.Identity, req.UserAgent); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if req.AccountID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	anomalies, err := h.profiler.Evaluate(ctx, req.AccountID, req.AccountName, req.IP, req.UserAgent)
	if err != nil {
		// The login already succeeded on the host side; profile trouble is
		// not the caller's problem.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(anomalies) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := ReportResponse{Anomalies: make([]AnomalyResponse, 0, len(anomalies))}
	for _, a := range anomalies {
		resp.Anomalies = append(resp.Anomalies, toAnomalyResponse(a))
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
