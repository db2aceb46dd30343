package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "SWANID_HTTP_TIMEOUT"
	apiTokenEnvKey     = "SWANID_API_TOKEN"
)

// Upload is one file sent to the server.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Client is a simple HTTP client for the swanid API.
type Client struct {
	baseURL   string
	http      *http.Client
	authToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken: strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// SaveImage uploads one image with its tags.
func (c *Client) SaveImage(ctx context.Context, upload Upload, tags []string) (SaveResponse, error) {
	var resp SaveResponse
	fields := map[string]string{"tags": strings.Join(tags, " ")}
	err := c.doMultipart(ctx, "/v1/images", fields, []Upload{upload}, &resp)
	return resp, err
}

// FindImages lists images carrying any of tags.
func (c *Client) FindImages(ctx context.Context, tags []string) ([]ImageResponse, error) {
	var resp []ImageResponse
	query := url.Values{}
	query.Set("tags", strings.Join(tags, " "))
	err := c.do(ctx, http.MethodGet, "/v1/images", query, nil, &resp)
	return resp, err
}

// GetImage returns one image record.
func (c *Client) GetImage(ctx context.Context, id string) (ImageResponse, error) {
	var resp ImageResponse
	err := c.do(ctx, http.MethodGet, "/v1/images/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// UpdateTags replaces the tag set of id.
func (c *Client) UpdateTags(ctx context.Context, id string, tags []string) (ImageResponse, error) {
	var resp ImageResponse
	err := c.do(ctx, http.MethodPut, "/v1/images/"+url.PathEscape(id)+"/tags", nil, TagsRequest{Tags: tags}, &resp)
	return resp, err
}

// DeleteImage removes one image.
func (c *Client) DeleteImage(ctx context.Context, id string) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodDelete, "/v1/images/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// DownloadImage streams the content of id into w.
func (c *Client) DownloadImage(ctx context.Context, id string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/images/"+url.PathEscape(id)+"/content", nil)
	if err != nil {
		return err
	}
	c.setAuthHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Analyze sends uploads for classification.
func (c *Client) Analyze(ctx context.Context, uploads []Upload) (AnalyzeResponse, error) {
	var resp AnalyzeResponse
	err := c.doMultipart(ctx, "/v1/analyze", nil, uploads, &resp)
	return resp, err
}

// Repair reconciles blobs and metadata; without apply it only reports.
func (c *Client) Repair(ctx context.Context, apply bool) (RepairResponse, error) {
	var resp RepairResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/repair", nil, RepairRequest{Apply: apply}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	return c.send(req, out)
}

func (c *Client) doMultipart(ctx context.Context, path string, fields map[string]string, uploads []Upload, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}
	for _, upload := range uploads {
		part, err := mw.CreateFormFile("f[]", filepath.Base(upload.Filename))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, upload.Content); err != nil {
			return fmt.Errorf("read %s: %w", upload.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeader(req)

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
