package processes

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HealthPath is the route every embedded server answers once it accepts connections.
const HealthPath = "/health"

// HealthChecker defines the interface for probing an embedded server.
type HealthChecker interface {
	// Check returns nil if the server at baseURL is accepting connections and healthy.
	Check(ctx context.Context, baseURL string) error
}

// HTTPHealthChecker implements HealthChecker using HTTP GET requests against HealthPath.
type HTTPHealthChecker struct {
	client *http.Client
}

// NewHTTPHealthChecker creates a new HTTPHealthChecker.
// requestTimeout specifies the timeout for each health check HTTP request.
func NewHTTPHealthChecker(requestTimeout time.Duration) *HTTPHealthChecker {
	return &HTTPHealthChecker{
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Check performs one health probe.
func (h *HTTPHealthChecker) Check(ctx context.Context, baseURL string) error {
	url := baseURL + HealthPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// Network error, timeout, connection refused, etc.
		return fmt.Errorf("health check request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check at %s returned status %s", url, resp.Status)
	}
	return nil
}
