// Package transport replays queued requests against the backend once
// connectivity is restored.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is the minimal shape the transport needs to replay an entry.
type Request struct {
	URL     string
	Method  string
	Body    []byte
	Headers map[string]string
}

// Doer delivers one replayed request. An error means the delivery should be
// retried (subject to the entry's retry budget); nil means the entry is done.
type Doer interface {
	Do(ctx context.Context, req Request) error
}

// HTTPDoer delivers requests over HTTP. Per-request deadlines come from the
// caller's context; the embedded client carries no timeout of its own so the
// engine stays in charge.
type HTTPDoer struct {
	client *http.Client
}

// NewHTTPDoer creates the default replay transport.
func NewHTTPDoer() *HTTPDoer {
	return &HTTPDoer{client: &http.Client{}}
}

// Do issues the request. A 5xx answer is a retryable failure; anything below
// means the backend rendered a verdict and replaying again won't change it.
func (d *HTTPDoer) Do(ctx context.Context, req Request) error {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	res, err := d.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		msg := strings.TrimSpace(string(payload))
		if msg != "" {
			return fmt.Errorf("replay failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("replay failed: %s", res.Status)
	}
	return nil
}

// WithTimeout derives a bounded context for one delivery. Replayed requests
// are opaque external calls, so the abort is time-based, not cooperative.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
