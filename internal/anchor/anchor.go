// Package anchor talks to the external anchoring service that commits event
// hashes to a tamper-evident log outside the engine's own storage. The
// service is a black box that may be slow or transiently unavailable; the
// append path degrades to a pending anchor rather than blocking on it.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Service obtains an anchor reference for a payload hash.
type Service interface {
	Anchor(ctx context.Context, payloadHash string) (string, error)
}

// HTTPService anchors hashes via an HTTP anchoring endpoint.
type HTTPService struct {
	url    string
	client *http.Client
}

// NewHTTPService creates an HTTP anchoring client.
func NewHTTPService(url string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPService{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Anchor submits the hash and returns the service's opaque reference.
func (s *HTTPService) Anchor(ctx context.Context, payloadHash string) (string, error) {
	body, err := json.Marshal(map[string]string{"hash": payloadHash})
	if err != nil {
		return "", fmt.Errorf("marshal anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anchoring service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anchoring service returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read anchor response: %w", err)
	}

	var result struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode anchor response: %w", err)
	}
	if result.Reference == "" {
		return "", fmt.Errorf("anchoring service returned empty reference")
	}
	return result.Reference, nil
}
