package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPDriver talks to a page-driver service over HTTP. Each call is a
// POST of the serialized ToolCall to <base>/execute; the service answers
// with a Result in the same JSON shape.
type HTTPDriver struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// HTTPOption configures an HTTPDriver.
type HTTPOption func(*HTTPDriver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(d *HTTPDriver) {
		d.client = client
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(d *HTTPDriver) {
		d.headers[key] = value
	}
}

// NewHTTPDriver creates a driver backed by a page-driver service.
func NewHTTPDriver(baseURL string, opts ...HTTPOption) *HTTPDriver {
	d := &HTTPDriver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute implements Driver.
func (d *HTTPDriver) Execute(ctx context.Context, call ToolCall) Result {
	if !Known(call.Tool) {
		return Failf(CodeInvalidAction, "unknown tool: %s", call.Tool)
	}

	body, err := json.Marshal(call)
	if err != nil {
		return Failf(CodeInvalidAction, "marshal call: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Failf(CodeInvalidAction, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Fail(CodeTimeout, ctx.Err().Error())
		}
		return Failf(CodeTimeout, "driver request: %v", err).WithRetryable()
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Failf(CodeTimeout, "read driver response: %v", err).WithRetryable()
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Fail(CodeRateLimited, "driver rate limited").WithRetryable()
	case resp.StatusCode >= 500:
		return Failf(CodeTimeout, "driver error %d: %s", resp.StatusCode, truncate(string(payload), 200)).WithRetryable()
	case resp.StatusCode >= 400:
		return Failf(CodeInvalidAction, "driver rejected call (%d): %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Failf(CodeInvalidAction, "decode driver response: %v", err)
	}
	return result
}

// CheckIntervention implements InterventionChecker by polling the
// service's /intervention endpoint. A service without the endpoint never
// requires intervention.
func (d *HTTPDriver) CheckIntervention(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/intervention", nil)
	if err != nil {
		return "", false
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var status struct {
		Needed bool   `json:"needed"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", false
	}
	return status.Reason, status.Needed
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:cut], len(s))
}
