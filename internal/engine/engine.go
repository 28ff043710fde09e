// Package engine keeps a client usable across flaky, transitioning, and
// intermittently absent connectivity. It owns the connectivity state
// machine, the quality sampler, the backoff reconnection controller, and
// the replay queue, and exposes them behind a single facade.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"netmend/internal/bus"
	"netmend/internal/config"
	"netmend/internal/metrics"
	"netmend/internal/model"
	"netmend/internal/probe"
	"netmend/internal/quality"
	"netmend/internal/queue"
	"netmend/internal/transport"
)

// Engine is the network-resilience facade. All mutating access to state,
// queue, and metrics goes through its methods; snapshots returned to
// callers are copies.
type Engine struct {
	mu  sync.Mutex
	cfg config.Config

	state       model.NetworkState
	connType    model.ConnectionType
	lastQuality model.NetworkQuality
	metrics     model.RecoveryMetrics
	syncState   model.SyncState

	pending *queue.Queue
	checker probe.Checker
	doer    transport.Doer
	sampler *quality.Sampler
	events  *bus.Bus
	logger  *slog.Logger
	now     func() time.Time

	bandwidthHint func() float64
	customChecker bool
	customDoer    bool

	nextID        int64
	failedReplays int

	reconnectAttempts int
	reconnectTimer    *time.Timer
	reconnectPending  bool
	probing           bool
	disconnectedAt    time.Time

	syncInFlight  bool
	syncRequested bool
	paused        bool

	started bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup // periodic loops and sync passes
	pumpWg  sync.WaitGroup // subscription pumps, drained after the bus closes
}

// Option customizes engine construction.
type Option func(*Engine)

// WithChecker injects a connectivity checker, overriding the one built
// from config.
func WithChecker(c probe.Checker) Option {
	return func(e *Engine) {
		e.checker = c
		e.customChecker = true
	}
}

// WithDoer injects the replay transport.
func WithDoer(d transport.Doer) Option {
	return func(e *Engine) {
		e.doer = d
		e.customDoer = true
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBandwidthHint wires a platform-reported bandwidth estimate (Mbps)
// into the quality sampler.
func WithBandwidthHint(fn func() float64) Option {
	return func(e *Engine) { e.bandwidthHint = fn }
}

// New constructs an engine. The initial state is online with an empty
// queue and zeroed metrics.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	config.ApplyDefaults(&cfg)

	e := &Engine{
		cfg:      cfg.Clone(),
		state:    model.StateOnline,
		connType: model.ConnUnknown,
		logger:   slog.Default(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if !e.customChecker {
		checker, err := buildChecker(e.cfg)
		if err != nil {
			return nil, err
		}
		e.checker = checker
	}
	if !e.customDoer {
		e.doer = transport.NewHTTPDoer()
	}

	e.pending = queue.New(e.cfg.QueueMaxSize)
	e.events = bus.New(e.logger)
	e.sampler = quality.NewSampler(e.checker, e.bandwidthHint, e.cfg.BandwidthFallbackMbps, e.logger)
	return e, nil
}

func buildChecker(cfg config.Config) (probe.Checker, error) {
	switch cfg.Checker {
	case "http":
		if cfg.HealthURL == "" {
			return nil, fmt.Errorf("health_url is required for the http checker")
		}
		return probe.NewHTTPChecker(cfg.HealthURL, cfg.HealthTimeout()), nil
	case "stun":
		if len(cfg.STUNServers) == 0 {
			return nil, fmt.Errorf("stun_servers is required for the stun checker")
		}
		return probe.NewSTUNChecker(cfg.STUNServers, cfg.HealthTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown checker %q", cfg.Checker)
	}
}

// Start launches the periodic quality and sync loops. Signals and control
// operations work without Start; Start only adds the timed behavior.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(2)
	go e.qualityLoop()
	go e.syncLoop()
}

// Stop halts timers and loops and closes the notification bus. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
	}
	e.reconnectPending = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	// A reconnect probe scheduled via AfterFunc is not tracked by the
	// WaitGroup; wait for it to observe the closed flag.
	for {
		e.mu.Lock()
		busy := e.probing
		e.mu.Unlock()
		if !busy {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	e.events.Close()
	e.pumpWg.Wait()
}

// State returns the current network state.
func (e *Engine) State() model.NetworkState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ConnectionType returns the last reported transport type.
func (e *Engine) ConnectionType() model.ConnectionType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connType
}

// Quality returns the most recent quality assessment.
func (e *Engine) Quality() model.NetworkQuality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastQuality
}

// Metrics returns a copy of the lifetime recovery metrics.
func (e *Engine) Metrics() model.RecoveryMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// ResetMetrics zeroes the recovery metrics. Never happens implicitly.
func (e *Engine) ResetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = model.RecoveryMetrics{}
}

// SyncStatus returns the sync state derived from the last pass.
func (e *Engine) SyncStatus() model.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.syncState
	st.PendingCount = e.pending.Len()
	st.SyncInProgress = e.syncInFlight
	return st
}

// BufferState returns copies of the pending queue entries in FIFO order.
func (e *Engine) BufferState() []model.QueuedRequest {
	return e.pending.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

// IsOnline reports whether the engine considers itself connected.
// Degraded counts as online.
func (e *Engine) IsOnline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsOnline()
}

// CanSync reports whether a sync pass would currently replay anything.
func (e *Engine) CanSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.IsEnabled() && !e.paused && e.state.IsOnline()
}

// QueueRequest buffers a mutating request for replay. The engine assigns
// the id and fills retry and expiry defaults from config. Returns the id.
func (e *Engine) QueueRequest(req model.QueuedRequest) string {
	e.mu.Lock()
	e.nextID++
	req.ID = fmt.Sprintf("req-%d", e.nextID)
	req.Timestamp = e.now()
	req.Retries = 0
	if req.MaxRetries == 0 {
		req.MaxRetries = e.cfg.MaxRetries
	}
	if req.ExpiresAt == nil {
		expires := e.now().Add(e.cfg.RequestExpiry())
		req.ExpiresAt = &expires
	}
	e.metrics.RequestsQueued++
	autoSync := e.cfg.IsAutoSync() && e.cfg.IsEnabled() && !e.paused && e.state.IsOnline()
	e.mu.Unlock()

	if evicted := e.pending.Push(req.Clone()); evicted != nil {
		e.logger.Warn("queue at capacity, evicted oldest request",
			"evicted_id", evicted.ID, "queued_id", req.ID)
	}
	e.logger.Debug("request queued", "id", req.ID, "priority", req.Priority, "url", req.URL)

	if autoSync {
		e.RequestSync("enqueue while online")
	}
	return req.ID
}

// CancelRequest removes a pending request. No-op if absent.
func (e *Engine) CancelRequest(id string) bool {
	return e.pending.Cancel(id)
}

// ClearQueue drops every pending request unconditionally.
func (e *Engine) ClearQueue() {
	n := e.pending.Clear()
	if n > 0 {
		e.logger.Info("queue cleared", "dropped", n)
	}
	e.mu.Lock()
	e.syncState.PendingCount = 0
	e.mu.Unlock()
}

// RetryFailed zeroes retry counters on every pending entry and triggers
// an immediate sync. Entries already dropped after exhausting their
// retries are gone and do not come back.
func (e *Engine) RetryFailed() {
	e.pending.ResetRetries()
	e.RequestSync("retry failed")
}

// PauseSync stops sync passes before their next scheduled run.
func (e *Engine) PauseSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// ResumeSync re-enables sync and drains immediately if work is pending.
func (e *Engine) ResumeSync() {
	e.mu.Lock()
	e.paused = false
	trigger := e.cfg.IsAutoSync() && e.cfg.IsEnabled() && e.state.IsOnline()
	e.mu.Unlock()

	if trigger && e.pending.Len() > 0 {
		e.RequestSync("resume")
	}
}

// UpdateConfig replaces the configuration. Changes take effect on the next
// scheduled cycle, not retroactively on in-flight operations.
func (e *Engine) UpdateConfig(cfg config.Config) error {
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = cfg.Clone()
	if !e.customChecker {
		checker, err := buildChecker(e.cfg)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		e.checker = checker
		e.sampler = quality.NewSampler(e.checker, e.bandwidthHint, e.cfg.BandwidthFallbackMbps, e.logger)
	}
	e.mu.Unlock()

	for _, evicted := range e.pending.SetCapacity(cfg.QueueMaxSize) {
		e.logger.Warn("queue capacity reduced, evicted oldest request", "evicted_id", evicted.ID)
	}
	return nil
}

// OnNetworkChange registers a callback for state transitions and returns
// an unregister handle.
func (e *Engine) OnNetworkChange(fn func(model.NetworkChange)) func() {
	ch := e.events.Subscribe(bus.TopicNetworkChanged)
	e.pumpWg.Add(1)
	go func() {
		defer e.pumpWg.Done()
		for msg := range ch {
			if change, ok := msg.(model.NetworkChange); ok {
				fn(change)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { e.events.Unsubscribe(ch, bus.TopicNetworkChanged) })
	}
}

// OnQueueDrained registers a callback fired exactly once per sync pass
// that empties a previously non-empty queue.
func (e *Engine) OnQueueDrained(fn func(model.SyncState)) func() {
	ch := e.events.Subscribe(bus.TopicQueueDrained)
	e.pumpWg.Add(1)
	go func() {
		defer e.pumpWg.Done()
		for msg := range ch {
			if st, ok := msg.(model.SyncState); ok {
				fn(st)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { e.events.Unsubscribe(ch, bus.TopicQueueDrained) })
	}
}

// qualityLoop periodically measures quality while connected.
func (e *Engine) qualityLoop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		interval := e.cfg.QualityCheckInterval()
		e.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-e.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		e.mu.Lock()
		run := e.cfg.IsEnabled() && e.state.IsOnline()
		sampler := e.sampler
		state := e.state
		metricsPath := e.cfg.MetricsPath
		timeout := e.cfg.HealthTimeout()
		e.mu.Unlock()
		if !run {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(probeBudget)*timeout)
		q := sampler.Measure(ctx)
		cancel()
		e.applyQuality(q)

		sample := model.Sample{
			Timestamp:     e.now(),
			State:         state,
			Checker:       sampler.CheckerName(),
			LatencyMs:     q.LatencyMs,
			JitterMs:      q.JitterMs,
			BandwidthMbps: q.BandwidthMbps,
			Score:         q.Score,
		}
		e.publish(bus.TopicQualitySampled, sample)
		if metricsPath != "" {
			if err := metrics.AppendCSV(metricsPath, []model.Sample{sample}); err != nil {
				e.logger.Warn("append quality sample failed", "err", err)
			}
		}
	}
}

// probeBudget bounds a full sampler burst relative to one probe timeout.
const probeBudget = 3

// syncLoop periodically drains the queue while connected.
func (e *Engine) syncLoop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		interval := e.cfg.SyncInterval()
		e.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-e.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		e.mu.Lock()
		run := e.cfg.IsEnabled() && !e.paused && e.state.IsOnline()
		e.mu.Unlock()
		if run && e.pending.Len() > 0 {
			e.RequestSync("interval")
		}
	}
}

// publish sends a bus event unless the engine is shut down.
func (e *Engine) publish(topic string, msg interface{}) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.events.Publish(topic, msg)
}
