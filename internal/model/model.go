package model

import "time"

// NetworkState describes the engine's current view of connectivity.
type NetworkState string

const (
	StateOnline        NetworkState = "online"
	StateOffline       NetworkState = "offline"
	StateReconnecting  NetworkState = "reconnecting"
	StateDegraded      NetworkState = "degraded"
	StateTransitioning NetworkState = "transitioning"
)

// IsOnline reports whether the state permits queue replay and sync.
// Degraded behaves like online for queueing and sync purposes.
func (s NetworkState) IsOnline() bool {
	return s == StateOnline || s == StateDegraded
}

// ConnectionType is the transport carrying traffic. It is independent of
// NetworkState; a type change alone never forces a state change.
type ConnectionType string

const (
	ConnWifi     ConnectionType = "wifi"
	ConnCellular ConnectionType = "cellular"
	ConnEthernet ConnectionType = "ethernet"
	ConnNone     ConnectionType = "none"
	ConnUnknown  ConnectionType = "unknown"
)

// NetworkQuality is one quality assessment against the health endpoint.
type NetworkQuality struct {
	LatencyMs     float64 `json:"latency_ms"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`
	PacketLoss    float64 `json:"packet_loss"` // 0..1
	JitterMs      float64 `json:"jitter_ms"`
	Score         int     `json:"score"` // 0..100
}

// WorstQuality is the sentinel produced when probing fails outright.
// Quality measurement never returns an error.
func WorstQuality() NetworkQuality {
	return NetworkQuality{LatencyMs: 9999, PacketLoss: 1, Score: 0}
}

// QueuedRequest is a pending mutating request captured while connectivity
// is impaired. Owned by the queue; only Retries mutates after enqueue.
type QueuedRequest struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Retries    int               `json:"retries"`
	MaxRetries int               `json:"max_retries"`
	Priority   int               `json:"priority"`             // higher = more urgent
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"` // nil = never expires
}

// Expired reports whether the request passed its deadline at now.
func (r QueuedRequest) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Clone returns a deep copy so callers can't mutate queue-owned entries.
func (r QueuedRequest) Clone() QueuedRequest {
	out := r
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.ExpiresAt != nil {
		at := *r.ExpiresAt
		out.ExpiresAt = &at
	}
	return out
}

// SyncState is derived from the queue contents after each sync pass.
type SyncState struct {
	PendingCount   int       `json:"pending_count"`
	LastSyncTime   time.Time `json:"last_sync_time"`
	SyncInProgress bool      `json:"sync_in_progress"`
	FailedCount    int       `json:"failed_count"`
}

// RecoveryMetrics accumulates for the engine lifetime.
// Reset only by an explicit facade action, never implicitly.
type RecoveryMetrics struct {
	TotalDisconnections      int64   `json:"total_disconnections"`
	SuccessfulRecoveries     int64   `json:"successful_recoveries"`
	FailedRecoveries         int64   `json:"failed_recoveries"`
	RequestsQueued           int64   `json:"requests_queued"`
	RequestsReplayed         int64   `json:"requests_replayed"`
	NetworkTransitions       int64   `json:"network_transitions"`
	AverageOfflineDurationMs float64 `json:"average_offline_duration_ms"`
	OfflineEpisodes          int64   `json:"offline_episodes"` // samples folded into the running average
}

// NetworkChange is published on every state transition.
type NetworkChange struct {
	From           NetworkState
	To             NetworkState
	ConnectionType ConnectionType
	At             time.Time
}

// Sample is one recorded quality measurement (stats/CSV row).
type Sample struct {
	Timestamp     time.Time
	State         NetworkState
	Checker       string
	LatencyMs     float64
	JitterMs      float64
	BandwidthMbps float64
	Score         int
}
