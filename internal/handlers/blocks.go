package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
)

// BlockAdminInterface defines the manual block operations the handler needs
type BlockAdminInterface interface {
	BlockIP(ctx context.Context, ip, reason string, permanent bool, durationIfTemp time.Duration, actorID string) error
	UnblockIP(ctx context.Context, ip, actorID string) error
}

// BlockStoreReader lists blocks for the operator API
type BlockStoreReader interface {
	List(ctx context.Context, limit, offset int) ([]*models.IPBlock, error)
	Count(ctx context.Context) (int64, error)
}

// BlockHandler handles operator block management requests
type BlockHandler struct {
	throttle BlockAdminInterface
	blocks   BlockStoreReader
}

// NewBlockHandler creates a new BlockHandler
func NewBlockHandler(throttle BlockAdminInterface, blocks BlockStoreReader) *BlockHandler {
	return &BlockHandler{
		throttle: throttle,
		blocks:   blocks,
	}
}

// CreateBlockRequest represents the request body for a manual block
type CreateBlockRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	Reason          string `json:"reason" validate:"required,max=500"`
	Permanent       bool   `json:"permanent"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,gte=1,lte=525600"`
}

// BlockResponse represents an IP block in HTTP responses
type BlockResponse struct {
	ID        string  `json:"id"`
	IPAddress string  `json:"ip_address"`
	BlockedAt string  `json:"blocked_at"`
	ExpiresAt *string `json:"expires_at,omitempty"`
	Permanent bool    `json:"permanent"`
	Reason    string  `json:"reason"`
	BlockedBy string  `json:"blocked_by"`
}

func toBlockResponse(b *models.IPBlock) BlockResponse {
	resp := BlockResponse{
		ID:        b.ID,
		IPAddress: b.IPAddress,
		BlockedAt: b.BlockedAt.Format(time.RFC3339),
		Permanent: b.Permanent,
		Reason:    b.Reason,
		BlockedBy: b.BlockedBy,
	}
	if b.ExpiresAt != nil {
		s := b.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}

// List returns the current blocks, paginated, with X-Total-Count
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	blocks, err := h.blocks.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	total, err := h.blocks.Count(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]BlockResponse, 0, len(blocks))
	for _, b := range blocks {
		resp = append(resp, toBlockResponse(b))
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Create places a manual block. Temporary blocks require a duration.
func (h *BlockHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if !req.Permanent && req.DurationMinutes == 0 {
		pkghttp.WriteBadRequest(w, "duration_minutes is required for temporary blocks")
		return
	}

	actorID := actorFromRequest(r)
	duration := time.Duration(req.DurationMinutes) * time.Minute

	if err := h.throttle.BlockIP(r.Context(), req.IP, req.Reason, req.Permanent, duration, actorID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Delete removes a block. Deleting an absent block succeeds.
func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "Missing ip parameter")
		return
	}

	if err := h.throttle.UnblockIP(r.Context(), ip, actorFromRequest(r)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// paginationParams reads limit/offset query params with clamped defaults
func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// actorFromRequest resolves the acting operator's subject id from the JWT
// claims, falling back to "unknown" (routes enforce authentication first).
func actorFromRequest(r *http.Request) string {
	if claims := auth.GetClaims(r); claims != nil {
		return claims.SubjectID
	}
	return "unknown"
}
