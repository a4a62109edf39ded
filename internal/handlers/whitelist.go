package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// WhitelistServiceInterface defines the exemption-list operations the handler needs
type WhitelistServiceInterface interface {
	Add(ctx context.Context, kind, value, actorID string) error
	Remove(ctx context.Context, kind, value, actorID string) error
	List(ctx context.Context) ([]*models.WhitelistEntry, error)
}

// WhitelistHandler handles operator whitelist management requests
type WhitelistHandler struct {
	service WhitelistServiceInterface
}

// NewWhitelistHandler creates a new WhitelistHandler
func NewWhitelistHandler(service WhitelistServiceInterface) *WhitelistHandler {
	return &WhitelistHandler{service: service}
}

// WhitelistEntryRequest represents the request body for add/remove
type WhitelistEntryRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=ip uri"`
	Value string `json:"value" validate:"required,max=500"`
}

// WhitelistEntryResponse represents an exemption in HTTP responses
type WhitelistEntryResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// List returns all exemptions
func (h *WhitelistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]WhitelistEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, WhitelistEntryResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			Value:     e.Value,
			CreatedBy: e.CreatedBy,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Add registers an exemption
func (h *WhitelistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req WhitelistEntryRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Add(r.Context(), req.Kind, req.Value, actorFromRequest(r)); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Whitelist entry already exists")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Remove deletes an exemption
func (h *WhitelistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req WhitelistEntryRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Remove(r.Context(), req.Kind, req.Value, actorFromRequest(r)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Whitelist entry not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
