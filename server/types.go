package server

import (
	"time"

	savesync "github.com/teranos/savesync/sync"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 32
	// MaxClientMessageQueueSize is the size of per-client outbound queues
	MaxClientMessageQueueSize = 64
	// ShutdownTimeout is how long Stop waits for connections and goroutines
	ShutdownTimeout = 10 * time.Second
)

// Message types exchanged over /ws
const (
	MsgSave   = "save"   // client → server: blob was saved locally
	MsgLoad   = "load"   // client → server: request the stored blob
	MsgPing   = "ping"   // client → server: keepalive
	MsgSaved  = "saved"  // server → client: save stored and published
	MsgState  = "state"  // server → client: reply to load
	MsgReload = "reload" // server → client: remote content replaced the local blob
	MsgError  = "error"  // server → client: request failed
)

// Message is the single frame shape used in both directions
type Message struct {
	Type  string `json:"type"`
	Blob  string `json:"blob,omitempty"`
	Found *bool  `json:"found,omitempty"` // set on state replies
	Error string `json:"error,omitempty"`
}

// StateResponse is returned by GET /api/state
type StateResponse struct {
	Key   string `json:"key"`
	Blob  string `json:"blob"`
	Found bool   `json:"found"`
}

// SaveRequest is the body of POST /api/save
type SaveRequest struct {
	Blob string `json:"blob"`
}

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Phase    string `json:"phase"`
	Handle   string `json:"handle,omitempty"`
	Session  uint64 `json:"session"`
	Pending  int    `json:"pending"`
	SignedIn bool   `json:"signed_in"`
	Clients  int    `json:"clients"`
	Version  string `json:"version"`
}

// StatusSource reports the sync controller's state
type StatusSource interface {
	State() savesync.State
}

// SessionSource reports whether the user is signed in
type SessionSource interface {
	Active() bool
}

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
