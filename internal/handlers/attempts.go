package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// AttemptLedgerReader lists login attempts for the operator API
type AttemptLedgerReader interface {
	List(ctx context.Context, success *bool, limit, offset int) ([]*models.LoginAttempt, error)
	Count(ctx context.Context, success *bool) (int64, error)
}

// AttemptHandler handles operator requests for the attempt ledger
type AttemptHandler struct {
	ledger AttemptLedgerReader
}

// NewAttemptHandler creates a new AttemptHandler
func NewAttemptHandler(ledger AttemptLedgerReader) *AttemptHandler {
	return &AttemptHandler{ledger: ledger}
}

// AttemptResponse represents a login attempt in HTTP responses
type AttemptResponse struct {
	ID          string `json:"id"`
	IPAddress   string `json:"ip_address"`
	Identity    string `json:"identity"`
	Success     bool   `json:"success"`
	AttemptedAt string `json:"attempted_at"`
	UserAgent   string `json:"user_agent,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// List returns login attempts, optionally filtered by outcome, paginated,
// with X-Total-Count.
func (h *AttemptHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	var success *bool
	if v := r.URL.Query().Get("success"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "success must be true or false")
			return
		}
		success = &parsed
	}

	attempts, err := h.ledger.List(r.Context(), success, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	total, err := h.ledger.Count(r.Context(), success)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, AttemptResponse{
			ID:          a.ID,
			IPAddress:   a.IPAddress,
			Identity:    a.Identity,
			Success:     a.Success,
			AttemptedAt: a.AttemptedAt.Format(time.RFC3339),
			UserAgent:   a.UserAgent,
			CountryCode: a.CountryCode,
		})
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
