package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// Transport delivers readings and diagnostic reports to the dashboard
type Transport interface {
	SendReadings(ctx context.Context, readings []reading.Reading) error
	SendDiagnostic(ctx context.Context, diag reading.Diagnostic) error
}

// StatusError is returned when the dashboard answers with a non-2xx status.
// Code carries the error code from the response body when there is one.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Temporary reports whether resending the same payload may succeed.
// Validation failures (4xx) never will.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPTransport implements Transport against the dashboard REST API
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTP creates a transport for the dashboard at baseURL, e.g.
// "http://localhost:8080". A trailing slash or /v1 suffix is tolerated.
func NewHTTP(baseURL, apiKey string) (*HTTPTransport, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("dashboard URL is required")
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")

	return &HTTPTransport{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// SendReadings posts sensor readings to /v1/readings
func (t *HTTPTransport) SendReadings(ctx context.Context, readings []reading.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	return t.post(ctx, "/v1/readings", map[string]interface{}{
		"readings": readings,
	})
}

// SendDiagnostic posts one diagnostic report to /v1/diagnostics
func (t *HTTPTransport) SendDiagnostic(ctx context.Context, diag reading.Diagnostic) error {
	body := make(map[string]interface{}, len(diag.Values)+1)
	for k, v := range diag.Values {
		body[k] = v
	}
	body["timestamp"] = diag.Timestamp.UTC().Format(time.RFC3339Nano)
	return t.post(ctx, "/v1/diagnostics", body)
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		statusErr.Code = body.Error.Code
		statusErr.Message = body.Error.Message
	}
	return statusErr
}
