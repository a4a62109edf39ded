package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// FirewallEventReader lists firewall block events for the operator API
type FirewallEventReader interface {
	List(ctx context.Context, limit, offset int) ([]*models.FirewallBlockEvent, error)
	Count(ctx context.Context) (int64, error)
}

// AuditTrailReader lists audit events for the operator API
type AuditTrailReader interface {
	Trail(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error)
}

// EventHandler handles operator requests for firewall events and the audit trail
type EventHandler struct {
	events FirewallEventReader
	audit  AuditTrailReader
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(events FirewallEventReader, audit AuditTrailReader) *EventHandler {
	return &EventHandler{
		events: events,
		audit:  audit,
	}
}

// FirewallEventResponse represents a block event in HTTP responses
type FirewallEventResponse struct {
	ID          string `json:"id"`
	IPAddress   string `json:"ip_address"`
	RequestURI  string `json:"request_uri"`
	Method      string `json:"method"`
	UserAgent   string `json:"user_agent,omitempty"`
	RuleMatched string `json:"rule_matched"`
	IncidentID  string `json:"incident_id"`
	BlockedAt   string `json:"blocked_at"`
}

// AuditEventResponse represents an audit entry in HTTP responses
type AuditEventResponse struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Detail      string `json:"detail,omitempty"`
	ActorID     string `json:"actor_id"`
	CreatedAt   string `json:"created_at"`
}

// ListFirewallEvents returns block events newest first, with X-Total-Count
func (h *EventHandler) ListFirewallEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	events, err := h.events.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	total, err := h.events.Count(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]FirewallEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FirewallEventResponse{
			ID:          e.ID,
			IPAddress:   e.IPAddress,
			RequestURI:  e.RequestURI,
			Method:      e.Method,
			UserAgent:   e.UserAgent,
			RuleMatched: e.RuleMatched,
			IncidentID:  e.IncidentID,
			BlockedAt:   e.BlockedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ListAuditTrail returns audit events newest first
func (h *EventHandler) ListAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	events, err := h.audit.Trail(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, AuditEventResponse{
			ID:          e.ID,
			Action:      e.Action,
			SubjectType: e.SubjectType,
			SubjectID:   e.SubjectID,
			Detail:      e.Detail,
			ActorID:     e.ActorID,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
