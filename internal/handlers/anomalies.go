package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AnomalyAdminInterface defines the anomaly triage operations
type AnomalyAdminInterface interface {
	GetAnomaly(ctx context.Context, id string) (*models.Anomaly, error)
	MarkSafe(ctx context.Context, id, actorID string) error
	BlockFromAnomaly(ctx context.Context, id, actorID string) error
}

// AnomalyStoreReader lists anomalies for the operator API
type AnomalyStoreReader interface {
	List(ctx context.Context, status string, limit, offset int) ([]*models.Anomaly, error)
	Count(ctx context.Context, status string) (int64, error)
}

// AnomalyHandler handles operator anomaly triage requests
type AnomalyHandler struct {
	profiler  AnomalyAdminInterface
	anomalies AnomalyStoreReader
}

// NewAnomalyHandler creates a new AnomalyHandler
func NewAnomalyHandler(profiler AnomalyAdminInterface, anomalies AnomalyStoreReader) *AnomalyHandler {
	return &AnomalyHandler{
		profiler:  profiler,
		anomalies: anomalies,
	}
}

// AnomalyResponse represents an anomaly in HTTP responses
type AnomalyResponse struct {
	ID              string `json:"id"`
	AccountID       string `json:"account_id"`
	AccountName     string `json:"account_name,omitempty"`
	IPAddress       string `json:"ip_address"`
	CountryCode     string `json:"country_code,omitempty"`
	DeviceSignature string `json:"device_signature,omitempty"`
	AnomalyType     string `json:"anomaly_type"`
	Score           int    `json:"score"`
	Details         string `json:"details,omitempty"`
	DetectedAt      string `json:"detected_at"`
	Status          string `json:"status"`
}

func toAnomalyResponse(a *models.Anomaly) AnomalyResponse {
	return AnomalyResponse{
		ID:              a.ID,
		AccountID:       a.AccountID,
		AccountName:     a.AccountName,
		IPAddress:       a.IPAddress,
		CountryCode:     a.CountryCode,
		DeviceSignature: a.DeviceSignature,
		AnomalyType:     a.AnomalyType,
		Score:           a.Score,
		Details:         a.Details,
		DetectedAt:      a.DetectedAt.Format(time.RFC3339),
		Status:          a.Status,
	}
}

// List returns anomalies, optionally filtered by status, paginated, with
// X-Total-Count.
func (h *AnomalyHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	status := r.URL.Query().Get("status")
	if status != "" && !models.ValidAnomalyStatus(status) {
		pkghttp.WriteBadRequest(w, "Invalid status filter")
		return
	}

	anomalies, err := h.anomalies.List(r.Context(), status, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	total, err := h.anomalies.Count(r.Context(), status)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]AnomalyResponse, 0, len(anomalies))
	for _, a := range anomalies {
		resp = append(resp, toAnomalyResponse(a))
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Get returns a single anomaly by id
func (h *AnomalyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	anomaly, err := h.profiler.GetAnomaly(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Anomaly not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAnomalyResponse(anomaly))
}

// MarkSafe resolves an anomaly as a confirmed-legitimate login
func (h *AnomalyHandler) MarkSafe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.profiler.MarkSafe(r.Context(), id, actorFromRequest(r)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Anomaly not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Block marks the anomaly blocked and permanently blocks its source IP
func (h *AnomalyHandler) Block(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.profiler.BlockFromAnomaly(r.Context(), id, actorFromRequest(r)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Anomaly not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
