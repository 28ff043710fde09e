package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"netmend/internal/model"
)

// Client is a thin HTTP client for the daemon's status API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Status fetches the engine snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.getJSON(ctx, "/status", &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Queue lists the pending requests.
func (c *Client) Queue(ctx context.Context) ([]model.QueuedRequest, error) {
	var resp []model.QueuedRequest
	if err := c.getJSON(ctx, "/queue", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Enqueue buffers a request for replay and returns the assigned id.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.postJSON(ctx, "/queue", req, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// CancelRequest removes one pending request by id.
func (c *Client) CancelRequest(ctx context.Context, id string) error {
	return c.delete(ctx, "/queue?id="+url.QueryEscape(id))
}

// ClearQueue drops every pending request.
func (c *Client) ClearQueue(ctx context.Context) error {
	return c.delete(ctx, "/queue")
}

// Check runs an on-demand connectivity probe.
func (c *Client) Check(ctx context.Context) (CheckResponse, error) {
	var resp CheckResponse
	if err := c.postJSON(ctx, "/check", nil, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Sync asks the daemon for an immediate sync pass.
func (c *Client) Sync(ctx context.Context) error {
	return c.postJSON(ctx, "/sync", nil, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res)
	}
	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res)
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res)
	}
	return nil
}

func responseError(res *http.Response) error {
	body, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(body))
	if msg != "" {
		return fmt.Errorf("request failed: %s: %s", res.Status, msg)
	}
	return fmt.Errorf("request failed: %s", res.Status)
}
