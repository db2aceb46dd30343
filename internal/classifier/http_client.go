package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one inference round trip.
	DefaultTimeout = 60 * time.Second
	userAgent      = "swanid-classifier/1"
	maxErrorBody   = 4 << 10
)

// HTTPClient calls an inference service that accepts {"paths": [...]} and
// answers with a JSON array of predictions.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

type classifyRequest struct {
	Paths []string `json:"paths"`
}

// StatusError reports a non-2xx answer from the inference service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("inference service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("inference service returned %d: %s", e.StatusCode, e.Body)
}

// NewHTTPClient returns a client for endpoint.
func NewHTTPClient(endpoint string, timeout time.Duration) (*HTTPClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("inference url is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Classify posts paths and decodes the prediction list.
func (c *HTTPClient) Classify(ctx context.Context, paths []string) ([]Prediction, error) {
	payload, err := json.Marshal(classifyRequest{Paths: paths})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var predictions []Prediction
	if err := json.NewDecoder(resp.Body).Decode(&predictions); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	for i, p := range predictions {
		if p.Filename() == "" {
			return nil, fmt.Errorf("prediction %d has no %s", i, FilenameKey)
		}
	}
	return predictions, nil
}
