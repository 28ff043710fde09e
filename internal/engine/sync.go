package engine

import (
	"context"
	"sort"
	"time"

	"netmend/internal/bus"
	"netmend/internal/model"
	"netmend/internal/transport"
)

// RequestSync asks for a sync pass. At most one pass runs at a time;
// requests arriving mid-pass coalesce into a single follow-up pass so a
// burst of triggers cannot replay the same entry concurrently.
func (e *Engine) RequestSync(reason string) {
	e.mu.Lock()
	if e.closed || !e.cfg.IsEnabled() {
		e.mu.Unlock()
		return
	}
	if e.syncInFlight {
		e.syncRequested = true
		e.mu.Unlock()
		return
	}
	e.syncInFlight = true
	e.syncState.SyncInProgress = true
	// Add under the lock so Stop's Wait cannot race the new pass.
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Debug("sync requested", "reason", reason)
	go func() {
		defer e.wg.Done()
		for {
			e.syncPass()
			e.mu.Lock()
			if e.syncRequested && !e.closed {
				e.syncRequested = false
				e.mu.Unlock()
				continue
			}
			e.syncInFlight = false
			e.syncState.SyncInProgress = false
			e.mu.Unlock()
			return
		}
	}()
}

// syncPass drains the queue once: drop expired entries, then replay the
// rest in priority order, highest first, FIFO within a priority.
func (e *Engine) syncPass() {
	e.mu.Lock()
	runnable := !e.closed && !e.paused && e.state.IsOnline()
	cfg := e.cfg
	e.mu.Unlock()

	defer e.finishPass()
	if !runnable {
		return
	}

	expired := e.pending.RemoveExpired(e.now())
	for _, req := range expired {
		e.logger.Info("request expired, dropped without replay", "id", req.ID)
	}

	batch := e.pending.Snapshot()
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Priority > batch[j].Priority
	})

	hadPending := len(batch) > 0 || len(expired) > 0

	for _, item := range batch {
		e.mu.Lock()
		degraded := e.state == model.StateDegraded
		keepGoing := !e.closed && !e.paused && e.state.IsOnline()
		e.mu.Unlock()
		if !keepGoing {
			// Connection died or sync was paused mid-drain; whatever is
			// left stays queued for the next pass.
			return
		}

		timeout := cfg.RequestTimeout()
		if degraded && cfg.DegradedTimeoutFactor > 1 {
			timeout = time.Duration(float64(timeout) * cfg.DegradedTimeoutFactor)
		}

		ctx, cancel := transport.WithTimeout(context.Background(), timeout)
		err := e.doer.Do(ctx, transport.Request{
			URL:     item.URL,
			Method:  item.Method,
			Body:    item.Body,
			Headers: item.Headers,
		})
		cancel()

		if err == nil {
			e.pending.Cancel(item.ID)
			e.mu.Lock()
			e.metrics.RequestsReplayed++
			e.mu.Unlock()
			continue
		}

		if item.Retries < item.MaxRetries {
			retries, _ := e.pending.IncrementRetries(item.ID)
			e.logger.Debug("replay failed, will retry",
				"id", item.ID, "retries", retries, "err", err)
			continue
		}

		e.pending.Cancel(item.ID)
		e.mu.Lock()
		e.failedReplays++
		e.mu.Unlock()
		e.logger.Warn("replay failed, retries exhausted, dropped",
			"id", item.ID, "err", err)
	}

	if hadPending && e.pending.Len() == 0 {
		e.publish(bus.TopicQueueDrained, e.SyncStatus())
		e.logger.Info("queue drained")
	}
}

// finishPass refreshes the externally visible sync state.
func (e *Engine) finishPass() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncState.LastSyncTime = e.now()
	e.syncState.PendingCount = e.pending.Len()
	e.syncState.FailedCount = e.failedReplays
}
