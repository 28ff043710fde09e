// Package api defines the local status API wire types and a thin client
// for scripting against a running daemon.
package api

import "netmend/internal/model"

// StatusResponse is the full engine snapshot served at GET /status.
type StatusResponse struct {
	State          model.NetworkState    `json:"state"`
	Online         bool                  `json:"online"`
	ConnectionType model.ConnectionType  `json:"connection_type"`
	Quality        model.NetworkQuality  `json:"quality"`
	Metrics        model.RecoveryMetrics `json:"metrics"`
	Sync           model.SyncState       `json:"sync"`
	Pending        int                   `json:"pending"`
}

// EnqueueRequest is the POST /queue payload.
type EnqueueRequest struct {
	URL        string            `json:"url"`
	Method     string            `json:"method,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
}

// EnqueueResponse carries the assigned request id.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// CheckResponse reports the outcome of an on-demand probe.
type CheckResponse struct {
	Online bool               `json:"online"`
	State  model.NetworkState `json:"state"`
}
