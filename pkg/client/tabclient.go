// Package client provides a small HTTP client for the ClearChoice tab API,
// mirroring the calls the web frontend makes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"clearchoice-backend/pkg/models"
	"clearchoice-backend/pkg/utils"
)

// Sentinel errors surfaced from API status codes.
var (
	ErrDuplicateTitle = errors.New("tab with this title already exists")
	ErrNotFound       = errors.New("tab not found")
)

// Client talks to the tab API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthToken attaches a bearer token to every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// New creates a Client. An empty baseURL falls back to the
// CLEARCHOICE_API_URL environment variable; requests need an absolute
// URL, so New fails when neither is set.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = os.Getenv("CLEARCHOICE_API_URL")
	}
	if baseURL == "" {
		return nil, errors.New("base URL is required: pass one or set CLEARCHOICE_API_URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SaveTabRequest mirrors the save endpoint payload. A zero ID creates
// a new tab; a non-zero ID patches an existing one. Nil fields are
// omitted from the request and leave the stored values untouched.
type SaveTabRequest struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description *string            `json:"description,omitempty"`
	UserID      string             `json:"userId"`
	Questions   *[]models.Question `json:"questions,omitempty"`
	TextInput   *string            `json:"textInput,omitempty"`
	URLInput    *string            `json:"urlInput,omitempty"`
	FileInput   *string            `json:"fileInput,omitempty"`
}

// Save creates or updates a tab. A 409 from the API is returned as
// ErrDuplicateTitle so callers can prompt for a new name.
func (c *Client) Save(ctx context.Context, req *SaveTabRequest) (*models.TabRecord, error) {
	var rec models.TabRecord
	if err := c.do(ctx, http.MethodPost, "/api/tab/save", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID fetches a tab and decodes its data blob into a typed Tab.
func (c *Client) GetByID(ctx context.Context, tabID string) (*models.Tab, error) {
	var rec models.TabRecord
	if err := c.do(ctx, http.MethodGet, "/api/tab/"+tabID, nil, &rec); err != nil {
		return nil, err
	}
	return models.DecodeRecord(&rec)
}

// List returns the header-only tab summaries for a user, newest first.
func (c *Client) List(ctx context.Context, userID string) ([]models.TabSummary, error) {
	var tabs []models.TabSummary
	if err := c.do(ctx, http.MethodGet, "/api/tab/list/"+userID, nil, &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

// History returns the server-side bucketized sidebar groups for a user.
func (c *Client) History(ctx context.Context, userID string) ([]models.HistoryGroup, error) {
	var groups []models.HistoryGroup
	if err := c.do(ctx, http.MethodGet, "/api/tab/history/"+userID, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// do sends one request and unwraps the API envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return ErrDuplicateTitle
	case http.StatusNotFound:
		return ErrNotFound
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *utils.APIError `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("API error %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
