// Package status provides a thread-safe status tracker for the relay
// controller. The controller loop writes it once per tick; HTTP handlers
// read it.
package status

import (
	"sync"
	"time"
)

// NetworkInfo describes the interface the controller reports on.
type NetworkInfo struct {
	Interface string
	IP        string
	SSID      string
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceName       string
	Chip             string
	Pins             []int
	ActiveLow        bool
	TickMs           int64
	SensorIntervalMs int64
	HTTPAddr         string
	Broker           string
	CloudEnabled     bool
}

// SensorInfo is the last-known-good reading of one sensor channel.
type SensorInfo struct {
	Index       int
	Kind        string
	Pin         int
	Temperature float64
	Humidity    float64
	Light       float64
	Moisture    float64
}

// State is the part of the snapshot owned by the controller loop.
type State struct {
	Outputs       []bool
	Sensors       []SensorInfo
	Connectivity  string
	Attempt       int
	Cloud         string
	CloudBuffered int
	Program       string
	SetupMode     bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State
	Peers     int
	StartTime time.Time
	Now       time.Time
	Network   *NetworkInfo
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	peers func() int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the loop-owned state. Slices are copied.
// Called from the controller loop on every tick.
func (t *Tracker) Update(st State) {
	st.Outputs = append([]bool(nil), st.Outputs...)
	st.Sensors = append([]SensorInfo(nil), st.Sensors...)
	t.mu.Lock()
	t.snap.State = st
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetPeerCounter sets the function used to report connected socket peers.
func (t *Tracker) SetPeerCounter(fn func() int) {
	t.mu.Lock()
	t.peers = fn
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	peers := t.peers
	t.mu.RUnlock()
	if peers != nil {
		s.Peers = peers()
	}
	s.Now = time.Now()
	return s
}
