package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Device        string       `json:"device"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	SetupMode     bool         `json:"setup_mode"`
	Indicator     string       `json:"indicator"`
	Outputs       []OutputJSON `json:"outputs"`
	Sensors       []SensorJSON `json:"sensors"`
	Network       NetworkJSON  `json:"network"`
	Cloud         CloudJSON    `json:"cloud"`
	Socket        SocketJSON   `json:"socket"`
	Config        ConfigJSON   `json:"config"`
}

// OutputJSON is one relay output.
type OutputJSON struct {
	Index int  `json:"index"`
	State bool `json:"state"`
}

// SensorJSON is one sensor channel. Only the fields of its kind are set.
type SensorJSON struct {
	Index       int      `json:"index"`
	Kind        string   `json:"kind"`
	Pin         int      `json:"pin"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Light       *float64 `json:"light,omitempty"`
	Moisture    *float64 `json:"moisture,omitempty"`
}

// NetworkJSON reports connectivity.
type NetworkJSON struct {
	Phase     string `json:"phase"`
	Attempt   int    `json:"attempt,omitempty"`
	Interface string `json:"interface,omitempty"`
	IP        string `json:"ip,omitempty"`
	SSID      string `json:"ssid,omitempty"`
}

// CloudJSON reports the cloud mirror.
type CloudJSON struct {
	Enabled  bool   `json:"enabled"`
	Phase    string `json:"phase"`
	Broker   string `json:"broker,omitempty"`
	Buffered int    `json:"buffered"`
}

// SocketJSON reports socket peers.
type SocketJSON struct {
	Peers int `json:"peers"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip             string `json:"chip"`
	Pins             []int  `json:"pins"`
	ActiveLow        bool   `json:"active_low"`
	TickMs           int64  `json:"tick_ms"`
	SensorIntervalMs int64  `json:"sensor_interval_ms"`
	HTTPAddr         string `json:"http_addr"`
}

func buildSensor(s SensorInfo) SensorJSON {
	out := SensorJSON{Index: s.Index, Kind: s.Kind, Pin: s.Pin}
	switch s.Kind {
	case "climate":
		out.Temperature = float(s.Temperature)
		out.Humidity = float(s.Humidity)
	case "light":
		out.Light = float(s.Light)
	case "moisture":
		out.Moisture = float(s.Moisture)
	}
	return out
}

func float(v float64) *float64 { return &v }

func buildInner(snap Snapshot) StatusInner {
	outputs := make([]OutputJSON, len(snap.Outputs))
	for i, on := range snap.Outputs {
		outputs[i] = OutputJSON{Index: i, State: on}
	}
	sensors := make([]SensorJSON, 0, len(snap.Sensors))
	for _, s := range snap.Sensors {
		sensors = append(sensors, buildSensor(s))
	}

	pins := snap.Config.Pins
	if pins == nil {
		pins = []int{}
	}

	connectivity := snap.Connectivity
	if connectivity == "" {
		connectivity = "unknown"
	}
	cloud := snap.Cloud
	if cloud == "" {
		cloud = "unknown"
	}

	inner := StatusInner{
		Device:        snap.Config.DeviceName,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		SetupMode:     snap.SetupMode,
		Indicator:     snap.Program,
		Outputs:       outputs,
		Sensors:       sensors,
		Network:       NetworkJSON{Phase: connectivity, Attempt: snap.Attempt},
		Cloud: CloudJSON{
			Enabled:  snap.Config.CloudEnabled,
			Phase:    cloud,
			Broker:   snap.Config.Broker,
			Buffered: snap.CloudBuffered,
		},
		Socket: SocketJSON{Peers: snap.Peers},
		Config: ConfigJSON{
			Chip:             snap.Config.Chip,
			Pins:             pins,
			ActiveLow:        snap.Config.ActiveLow,
			TickMs:           snap.Config.TickMs,
			SensorIntervalMs: snap.Config.SensorIntervalMs,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if snap.Network != nil {
		inner.Network.Interface = snap.Network.Interface
		inner.Network.IP = snap.Network.IP
		inner.Network.SSID = snap.Network.SSID
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
