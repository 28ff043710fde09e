package engine

import (
	"context"
	"math"
	"time"

	"netmend/internal/model"
)

// delayLocked computes the backoff delay before attempt n+1, where n is
// the number of attempts already made. Caller holds e.mu.
func (e *Engine) delayLocked(n int) time.Duration {
	d := float64(e.cfg.InitialDelay()) * math.Pow(e.cfg.BackoffMultiplier, float64(n))
	if max := float64(e.cfg.MaxDelay()); d > max {
		d = max
	}
	return time.Duration(d)
}

// scheduleReconnectLocked arms the next reconnect attempt. Idempotent: a
// pending timer or in-flight probe means the controller is already
// running. Caller holds e.mu.
func (e *Engine) scheduleReconnectLocked() {
	if e.closed || !e.cfg.IsEnabled() || e.cfg.Strategy == "none" {
		return
	}
	if e.reconnectPending || e.probing {
		return
	}
	if e.reconnectAttempts >= e.cfg.MaxRetries {
		return
	}
	delay := e.delayLocked(e.reconnectAttempts)
	e.reconnectPending = true
	e.reconnectTimer = time.AfterFunc(delay, e.attemptReconnect)
	e.logger.Debug("reconnect scheduled",
		"attempt", e.reconnectAttempts+1, "delay_ms", delay.Milliseconds())
}

// attemptReconnect fires from the backoff timer: probe once, recover on
// success, rearm or give up on failure.
func (e *Engine) attemptReconnect() {
	e.mu.Lock()
	e.reconnectPending = false
	if e.closed || e.state.IsOnline() {
		e.mu.Unlock()
		return
	}
	e.probing = true
	e.reconnectAttempts++
	attempt := e.reconnectAttempts
	change := e.setStateLocked(model.StateReconnecting)
	checker := e.checker
	timeout := e.cfg.HealthTimeout()
	e.mu.Unlock()

	e.publishChange(change)
	e.logger.Info("reconnect attempt", "attempt", attempt)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	_, err := checker.Check(ctx)
	cancel()

	e.mu.Lock()
	e.probing = false
	if e.closed || e.state.IsOnline() {
		// Recovered through a direct signal while we were probing.
		e.mu.Unlock()
		return
	}

	if err == nil {
		change, syncAfter := e.completeRecoveryLocked()
		e.mu.Unlock()
		e.publishChange(change)
		e.logger.Info("reconnected", "attempts", attempt)
		if syncAfter {
			e.RequestSync("reconnected")
		}
		return
	}

	if e.reconnectAttempts >= e.cfg.MaxRetries {
		e.metrics.FailedRecoveries++
		change := e.setStateLocked(model.StateOffline)
		e.mu.Unlock()
		e.publishChange(change)
		e.logger.Warn("reconnect attempts exhausted", "attempts", attempt, "err", err)
		return
	}

	change = e.setStateLocked(model.StateOffline)
	e.scheduleReconnectLocked()
	e.mu.Unlock()
	e.publishChange(change)
	e.logger.Debug("reconnect attempt failed", "attempt", attempt, "err", err)
}

// ForceReconnect resets the backoff counter and, if disconnected, probes
// immediately instead of waiting for the armed timer.
func (e *Engine) ForceReconnect() {
	e.mu.Lock()
	e.reconnectAttempts = 0
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
	}
	e.reconnectPending = false
	if e.closed || e.state.IsOnline() || e.probing {
		e.mu.Unlock()
		return
	}
	e.reconnectPending = true
	e.reconnectTimer = time.AfterFunc(0, e.attemptReconnect)
	e.mu.Unlock()
	e.logger.Info("reconnect forced")
}
