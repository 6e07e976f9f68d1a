package api

import (
	"github.com/stallwatch/stallwatch/internal/engine"
	"github.com/stallwatch/stallwatch/internal/gpu"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type            string   `json:"type"`
	IntervalMS      int      `json:"interval_ms"`
	GPU             gpu.Info `json:"gpu"`
	WatchDir        string   `json:"watch_dir,omitempty"`
	MaxBandwidthBps float64  `json:"max_bandwidth_bps,omitempty"`
}

// NewHelloMessage constructs a hello payload. maxBandwidthBps gives
// clients a full-scale value for network throughput gauges.
func NewHelloMessage(intervalMS int, info gpu.Info, watchDir string, maxBandwidthBps float64) HelloMessage {
	return HelloMessage{
		Type:            "hello",
		IntervalMS:      intervalMS,
		GPU:             info,
		WatchDir:        watchDir,
		MaxBandwidthBps: maxBandwidthBps,
	}
}

// SnapshotMessage wraps an engine snapshot for transport.
type SnapshotMessage struct {
	Type string `json:"type"`
	engine.Snapshot
}

// NewSnapshotMessage constructs a snapshot payload.
func NewSnapshotMessage(snapshot engine.Snapshot) SnapshotMessage {
	return SnapshotMessage{
		Type:     "snapshot",
		Snapshot: snapshot,
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
