package engine

import (
	"context"
	"time"

	"netmend/internal/bus"
	"netmend/internal/model"
)

// NotifyOnline is the platform signal that connectivity came back. It
// completes any offline episode in progress.
func (e *Engine) NotifyOnline() {
	e.mu.Lock()
	if e.state.IsOnline() {
		e.mu.Unlock()
		return
	}
	change, syncAfter := e.completeRecoveryLocked()
	e.mu.Unlock()

	e.publishChange(change)
	if syncAfter {
		e.RequestSync("back online")
	}
}

// NotifyOffline is the platform signal that connectivity was lost. It
// starts an offline episode and schedules the first reconnect attempt.
func (e *Engine) NotifyOffline() {
	e.mu.Lock()
	if e.state == model.StateOffline || e.state == model.StateReconnecting {
		e.mu.Unlock()
		return
	}
	e.metrics.TotalDisconnections++
	e.disconnectedAt = e.now()
	change := e.setStateLocked(model.StateOffline)
	e.scheduleReconnectLocked()
	e.mu.Unlock()

	e.publishChange(change)
	e.logger.Info("connectivity lost", "pending", e.pending.Len())
}

// NotifyConnectionType records a transport change (wifi to cellular and so
// on). The transport type never changes the network state by itself; a
// transition while connected stays online until a probe says otherwise.
func (e *Engine) NotifyConnectionType(t model.ConnectionType) {
	e.mu.Lock()
	if t == e.connType {
		e.mu.Unlock()
		return
	}
	prev := e.connType
	e.connType = t
	if prev != model.ConnUnknown {
		// The first report seeds the type; only later changes count as
		// transitions.
		e.metrics.NetworkTransitions++
	}
	e.mu.Unlock()

	e.logger.Info("transport changed", "from", prev, "to", t)
}

// CheckConnection runs the configured checker right now and reconciles
// state with the result. While the probe is in flight from a connected
// state, State reports transitioning. Returns whether the probe succeeded.
func (e *Engine) CheckConnection(ctx context.Context) bool {
	e.mu.Lock()
	wasConnected := e.state.IsOnline()
	var enter *model.NetworkChange
	if wasConnected {
		enter = e.setStateLocked(model.StateTransitioning)
	}
	checker := e.checker
	timeout := e.cfg.HealthTimeout()
	e.mu.Unlock()
	e.publishChange(enter)

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	_, err := checker.Check(probeCtx)
	cancel()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return err == nil
	}
	if err == nil {
		switch e.state {
		case model.StateTransitioning:
			change := e.setStateLocked(model.StateOnline)
			e.mu.Unlock()
			e.publishChange(change)
		case model.StateOffline, model.StateReconnecting:
			change, syncAfter := e.completeRecoveryLocked()
			e.mu.Unlock()
			e.publishChange(change)
			if syncAfter {
				e.RequestSync("connection check")
			}
		default:
			e.mu.Unlock()
		}
		return true
	}

	// Failed probe from a connected state is authoritative: go offline
	// and let the reconnection controller take over.
	if e.state == model.StateTransitioning {
		e.metrics.TotalDisconnections++
		e.disconnectedAt = e.now()
		change := e.setStateLocked(model.StateOffline)
		e.scheduleReconnectLocked()
		e.mu.Unlock()
		e.publishChange(change)
		e.logger.Warn("connection check failed", "err", err)
		return false
	}
	e.mu.Unlock()
	return false
}

// applyQuality stores a measurement and toggles online/degraded around the
// configured threshold. Other states are left alone; a sample taken while
// connectivity is changing is stale by the time it lands.
func (e *Engine) applyQuality(q model.NetworkQuality) {
	e.mu.Lock()
	e.lastQuality = q
	var change *model.NetworkChange
	switch {
	case e.state == model.StateOnline && q.Score < e.cfg.DegradedThreshold:
		change = e.setStateLocked(model.StateDegraded)
	case e.state == model.StateDegraded && q.Score >= e.cfg.DegradedThreshold:
		change = e.setStateLocked(model.StateOnline)
	}
	e.mu.Unlock()

	if change != nil {
		e.logger.Info("quality threshold crossed", "score", q.Score, "state", change.To)
	}
	e.publishChange(change)
}

// setStateLocked transitions the state machine and builds the change
// event. Callers hold e.mu and publish the event after unlocking.
func (e *Engine) setStateLocked(to model.NetworkState) *model.NetworkChange {
	if e.state == to {
		return nil
	}
	from := e.state
	e.state = to
	return &model.NetworkChange{
		From:           from,
		To:             to,
		ConnectionType: e.connType,
		At:             e.now(),
	}
}

// completeRecoveryLocked finishes an offline episode: folds its duration
// into the running average, counts the recovery, resets the backoff
// controller, and moves to online. Callers hold e.mu. The second return
// says whether an auto-sync should follow.
func (e *Engine) completeRecoveryLocked() (*model.NetworkChange, bool) {
	if !e.disconnectedAt.IsZero() {
		durMs := float64(e.now().Sub(e.disconnectedAt).Milliseconds())
		n := float64(e.metrics.OfflineEpisodes)
		e.metrics.AverageOfflineDurationMs = (e.metrics.AverageOfflineDurationMs*n + durMs) / (n + 1)
		e.metrics.OfflineEpisodes++
		e.disconnectedAt = time.Time{}
	}
	e.metrics.SuccessfulRecoveries++
	e.reconnectAttempts = 0
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
	}
	e.reconnectPending = false
	change := e.setStateLocked(model.StateOnline)
	syncAfter := e.cfg.IsAutoSync() && e.cfg.IsEnabled() && !e.paused
	return change, syncAfter
}

// publishChange emits a network change event. Nil changes are ignored.
func (e *Engine) publishChange(change *model.NetworkChange) {
	if change == nil {
		return
	}
	e.logger.Debug("state changed", "from", change.From, "to", change.To)
	e.publish(bus.TopicNetworkChanged, *change)
}
