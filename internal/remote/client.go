package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"crewclock/internal/models"
)

// Client is the HTTP client for the company system-of-record API. It is
// the only path the agent uses to write attendance data remotely; each
// queued action kind maps to exactly one call here. Request timeouts are
// owned by the embedded http.Client; a timed-out call is an ordinary
// failure and the action stays queued.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
}

// NewClient constructs a client with baseURL, API key and extra header.
func NewClient(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type idResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateTimeEntry replays a clock-in and returns the authoritative
// time-entry id minted by the server.
func (c *Client) CreateTimeEntry(ctx context.Context, p models.ClockInPayload) (string, error) {
	var resp idResponse
	if err := c.doPost(ctx, c.baseURL+"/api/v1/time-entries", p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CompleteTimeEntry replays a clock-out with its attestation fields.
func (c *Client) CompleteTimeEntry(ctx context.Context, p models.ClockOutPayload) error {
	endpoint := fmt.Sprintf("%s/api/v1/time-entries/%s/clock-out", c.baseURL, url.PathEscape(p.TimeEntryID))
	return c.doPost(ctx, endpoint, p, nil)
}

// CreateBreak replays a break-start and returns the break id.
func (c *Client) CreateBreak(ctx context.Context, p models.BreakStartPayload) (string, error) {
	var resp idResponse
	if err := c.doPost(ctx, c.baseURL+"/api/v1/breaks", p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CompleteBreak replays a break-end.
func (c *Client) CompleteBreak(ctx context.Context, p models.BreakEndPayload) error {
	endpoint := fmt.Sprintf("%s/api/v1/breaks/%s/end", c.baseURL, url.PathEscape(p.BreakID))
	return c.doPost(ctx, endpoint, p, nil)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("x-api-extra", c.apiExtra)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("call %s: %s", endpoint, readError(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
	}
	return nil
}

func readError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Sprintf("%s (%s)", resp.Status, e.Error)
		}
	}
	return resp.Status
}
