package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultBaseURL = "http://ip-api.com"

// IPAPIResolver resolves countries via the ip-api.com JSON endpoint
type IPAPIResolver struct {
	client  *http.Client
	baseURL string
}

// NewIPAPIResolver creates a resolver with the given per-lookup timeout
func NewIPAPIResolver(timeout time.Duration) *IPAPIResolver {
	return &IPAPIResolver{
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
	}
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
}

// Resolve looks up the country code for an IP. Private and unparseable IPs
// come back as "fail" from the provider and resolve to "".
func (r *IPAPIResolver) Resolve(ctx context.Context, ip string) (string, error) {
	url := fmt.Sprintf("%s/json/%s?fields=status,message,countryCode", r.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geo request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var data ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode geo response: %w", err)
	}

	if data.Status != "success" {
		return "", nil
	}

	return data.CountryCode, nil
}
