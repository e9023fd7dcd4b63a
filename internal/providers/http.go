package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultRequestTimeout bounds a vendor call when no timeout is configured.
const DefaultRequestTimeout = 60 * time.Second

// maxResponseBytes bounds how much of a vendor response is read.
const maxResponseBytes = 16 << 20

// NewHTTPClient creates the client shared by all adapters. A zero timeout
// selects the default.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// vendorCall describes one outbound request.
type vendorCall struct {
	vendor  string // display name, used in error messages
	method  string
	url     string
	body    any // JSON-encoded when non-nil
	auth    Authenticator
	headers map[string]string
}

// do sends the call and decodes a 2xx JSON body into out (when out is
// non-nil). Non-2xx responses become *APIError.
func do(ctx context.Context, client *http.Client, call vendorCall, out any) error {
	var reader io.Reader
	if call.body != nil {
		payload, err := json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", call.vendor, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", call.vendor, err)
	}

	req.Header.Set("Accept", "application/json")
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}
	if call.auth != nil {
		call.auth.Apply(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, which carries the key for query auth.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s request failed: %w", call.vendor, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", call.vendor, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(call.vendor, resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid %s response: %w", call.vendor, err)
	}
	return nil
}

// modelList matches the {"data": [...]} listing used by OpenAI-style APIs.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
