//go:build integration

// End-to-end recovery flow against real HTTP backends: lose connectivity,
// buffer writes, recover through the backoff controller, and replay in
// priority order through the status API.
package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"netmend/internal/api"
	"netmend/internal/config"
	"netmend/internal/engine"
	"netmend/internal/model"
	"netmend/internal/status"
)

func TestRecoveryEndToEnd(t *testing.T) {
	var healthy atomic.Bool

	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer health.Close()

	var mu sync.Mutex
	var received []string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	cfg := config.Config{
		Strategy:          "backoff",
		MaxRetries:        10,
		InitialDelayMs:    20,
		MaxDelayMs:        100,
		BackoffMultiplier: 2,
		QueueMaxSize:      10,
		RequestTimeoutMs:  2000,
		HealthURL:         health.URL,
		HealthTimeoutMs:   1000,
	}
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Stop()
	eng.Start()

	apiServer := httptest.NewServer(status.NewServer("", eng, nil).Handler())
	defer apiServer.Close()
	client := api.NewClient(apiServer.URL)
	ctx := context.Background()

	// Take connectivity down and buffer some writes through the API.
	eng.NotifyOffline()
	for _, req := range []api.EnqueueRequest{
		{URL: backend.URL + "/low", Method: "POST", Priority: 1},
		{URL: backend.URL + "/high", Method: "POST", Priority: 9},
		{URL: backend.URL + "/mid", Method: "POST", Priority: 5},
	} {
		if _, err := client.Enqueue(ctx, req); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Online || st.Pending != 3 {
		t.Fatalf("status=%+v", st)
	}

	// Bring the health endpoint back; the backoff controller should find
	// it and the auto-sync should drain the queue highest priority first.
	healthy.Store(true)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err = client.Status(ctx)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Online && st.Pending == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !st.Online || st.Pending != 0 {
		t.Fatalf("engine did not recover and drain: %+v", st)
	}

	mu.Lock()
	got := append([]string(nil), received...)
	mu.Unlock()
	want := []string{"/high", "/mid", "/low"}
	if len(got) != len(want) {
		t.Fatalf("received=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replay order=%v want=%v", got, want)
		}
	}

	if st.Metrics.SuccessfulRecoveries != 1 || st.Metrics.RequestsReplayed != 3 {
		t.Fatalf("metrics=%+v", st.Metrics)
	}

	// The metrics endpoint reflects the same counters.
	resp, err := http.Get(apiServer.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}

func TestQualityDegradation(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(250 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	cfg := config.Config{
		Strategy:               "none",
		DegradedThreshold:      80,
		QualityCheckIntervalMs: 50,
		HealthURL:              slow.URL,
		HealthTimeoutMs:        2000,
	}
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Stop()
	eng.Start()

	// A >200ms health endpoint takes a latency penalty big enough to fall
	// under the threshold, so the quality loop flips the state to
	// degraded. Degraded still counts as online.
	apiServer := httptest.NewServer(status.NewServer("", eng, nil).Handler())
	defer apiServer.Close()
	client := api.NewClient(apiServer.URL)
	ctx := context.Background()

	var st api.StatusResponse
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st, err = client.Status(ctx)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.State == model.StateDegraded {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if st.State != model.StateDegraded {
		t.Fatalf("state=%s quality=%+v", st.State, st.Quality)
	}
	if !st.Online {
		t.Fatal("degraded must report online")
	}
	if st.Quality.Score >= 80 {
		t.Fatalf("score=%d", st.Quality.Score)
	}
}
