// Package probe provides connectivity checkers. A checker answers one
// question per call: is the backend reachable right now, and how long did
// the round trip take.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Checker performs a single connectivity round trip.
type Checker interface {
	// Name identifies the checker in logs and samples.
	Name() string
	// Check returns the round-trip time, or an error if the backend is
	// unreachable within the checker's timeout.
	Check(ctx context.Context) (time.Duration, error)
}

// HTTPChecker probes a health endpoint with an idempotent HEAD request.
// Caching is defeated with a no-cache header and a cache-busting query
// parameter so the RTT reflects the network, not an intermediary.
type HTTPChecker struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPChecker builds a checker for the given health URL.
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPChecker) Name() string { return "http" }

// Check sends one HEAD request. A response with any status below 500 counts
// as reachable: the server answered, which is all connectivity asks for.
func (c *HTTPChecker) Check(ctx context.Context) (time.Duration, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	url := c.URL
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	url += sep + "t=" + strconv.FormatInt(time.Now().UnixNano(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	rtt := time.Since(start)

	if res.StatusCode >= 500 {
		return rtt, fmt.Errorf("health check failed: %s", res.Status)
	}
	return rtt, nil
}
