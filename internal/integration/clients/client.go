// Package clients holds the concrete external-service integrations. Each
// client adapts one remote system (credit bureau, government registry,
// biometric vendor, core banking) to the integration contract; the pipeline
// machinery stays ignorant of any vendor's wire format.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"loanflow/internal/integration"
)

const defaultTimeout = 10 * time.Second

// httpClient wraps the transport concerns every JSON vendor shares: basic
// auth from the service config, the configured timeout, and the mapping of
// failures onto the integration error taxonomy.
type httpClient struct {
	cfg  integration.Config
	http *http.Client
}

func newHTTPClient(cfg integration.Config) *httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpClient{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// postJSON sends a JSON body and decodes a JSON response into out.
// Network failures and 5xx responses become transport errors, so the runner
// records the service as unavailable rather than failed. Any other non-2xx
// status is a remote error.
func (c *httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", c.cfg.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Address+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.cfg.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Login != "" {
		req.SetBasicAuth(c.cfg.Login, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return integration.NewTransportError(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return integration.NewTransportError(c.cfg.Name,
			fmt.Errorf("upstream returned %d", resp.StatusCode))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return remoteFromBody(c.cfg.Name, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return integration.NewRemoteError(c.cfg.Name, "BAD_RESPONSE",
			fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// remoteFromBody extracts the vendor's error envelope when there is one.
func remoteFromBody(service string, resp *http.Response) error {
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Code != "" {
		return integration.NewRemoteError(service, envelope.Code, envelope.Message)
	}
	return integration.NewRemoteError(service, fmt.Sprintf("HTTP_%d", resp.StatusCode), string(raw))
}
