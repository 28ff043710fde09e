package engine

import (
	"testing"
	"time"

	"netmend/internal/config"
	"netmend/internal/model"
)

func TestDelay_ExponentialWithCap(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		InitialDelayMs:    1000,
		MaxDelayMs:        5000,
		BackoffMultiplier: 2,
	}
	e, err := New(cfg, WithChecker(&fakeChecker{}), WithDoer(&fakeDoer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Stop()

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}
	for n, expected := range want {
		if got := e.delayLocked(n); got != expected {
			t.Fatalf("delay(%d)=%v want %v", n, got, expected)
		}
	}
}

func TestReconnect_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 2
	checker := &fakeChecker{}
	e := newTestEngine(t, cfg, checker, &fakeDoer{})

	e.NotifyOffline()
	waitFor(t, func() bool { return e.Metrics().FailedRecoveries == 1 }, "exhaustion")

	if got := checker.callCount(); got != 2 {
		t.Fatalf("probes=%d", got)
	}
	if e.State() != model.StateOffline {
		t.Fatalf("state=%s", e.State())
	}

	// Exhausted controller stays quiet until something resets it.
	time.Sleep(50 * time.Millisecond)
	if got := checker.callCount(); got != 2 {
		t.Fatalf("probes after exhaustion=%d", got)
	}
}

func TestReconnect_RecoversWhenProbeSucceeds(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{ok: true}
	e := newTestEngine(t, testConfig(), checker, &fakeDoer{})

	e.NotifyOffline()
	waitFor(t, func() bool { return e.State() == model.StateOnline }, "recovery")

	m := e.Metrics()
	if m.SuccessfulRecoveries != 1 {
		t.Fatalf("recoveries=%d", m.SuccessfulRecoveries)
	}
	if m.FailedRecoveries != 0 {
		t.Fatalf("failed_recoveries=%d", m.FailedRecoveries)
	}
}

func TestReconnect_SchedulingIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.InitialDelayMs = 50
	cfg.MaxDelayMs = 100
	checker := &fakeChecker{}
	e := newTestEngine(t, cfg, checker, &fakeDoer{})

	e.NotifyOffline()
	// Redundant triggers while a timer is armed must not stack attempts.
	e.mu.Lock()
	e.scheduleReconnectLocked()
	e.scheduleReconnectLocked()
	e.mu.Unlock()

	time.Sleep(70 * time.Millisecond)
	if got := checker.callCount(); got != 1 {
		t.Fatalf("probes=%d want 1", got)
	}
}

func TestForceReconnect_ResetsBackoffAndProbesNow(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 1
	checker := &fakeChecker{}
	e := newTestEngine(t, cfg, checker, &fakeDoer{})

	e.NotifyOffline()
	waitFor(t, func() bool { return e.Metrics().FailedRecoveries == 1 }, "exhaustion")

	checker.set(true)
	e.ForceReconnect()
	waitFor(t, func() bool { return e.State() == model.StateOnline }, "forced recovery")

	if got := e.Metrics().SuccessfulRecoveries; got != 1 {
		t.Fatalf("recoveries=%d", got)
	}
}

func TestStrategyNone_DisablesController(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Strategy = "none"
	checker := &fakeChecker{ok: true}
	e := newTestEngine(t, cfg, checker, &fakeDoer{})

	e.NotifyOffline()
	time.Sleep(50 * time.Millisecond)
	if e.State() != model.StateOffline {
		t.Fatalf("state=%s", e.State())
	}
	if got := checker.callCount(); got != 0 {
		t.Fatalf("probes=%d", got)
	}
}
