// Package store persists the device record: network credentials, cloud
// mirror settings, channel assignments and the last commanded output states.
//
// The record is always read and written whole. A record carrying a different
// schema version is discarded and replaced by defaults; there is no migration.
package store

import (
	"errors"
	"fmt"
)

// SchemaVersion tags every saved record.
const SchemaVersion = 42

// Channel limits.
const (
	MaxOutputs = 4
	MaxSensors = 6
)

// ErrConfigVersionMismatch is reported when a stored record was replaced by defaults.
var ErrConfigVersionMismatch = errors.New("config version mismatch")

// SensorKind codes, as sent on the wire.
const (
	SensorNone     = 0
	SensorClimate  = 1
	SensorLight    = 2
	SensorMoisture = 3
)

// Record is the full persisted block.
type Record struct {
	Version    int            `yaml:"version"`
	DeviceName string         `yaml:"device_name"`
	MDNSName   string         `yaml:"mdns_name,omitempty"`
	WiFi       WiFiConfig     `yaml:"wifi"`
	Cloud      CloudConfig    `yaml:"cloud"`
	Outputs    OutputConfig   `yaml:"outputs"`
	Sensors    []SensorConfig `yaml:"sensors,omitempty"`
	State      []bool         `yaml:"state,omitempty"`
}

// WiFiConfig holds station credentials.
type WiFiConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// CloudConfig holds the MQTT feed mirror settings.
type CloudConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	Username  string `yaml:"username"`
	Key       string `yaml:"key"`
	RelayFeed string `yaml:"relay_feed"`
	IPFeed    string `yaml:"ip_feed"`
}

// OutputConfig holds relay pin assignments (BCM numbering).
type OutputConfig struct {
	Pins      []int `yaml:"pins,omitempty"`
	ActiveLow bool  `yaml:"active_low"`
}

// SensorConfig describes one sensor channel.
type SensorConfig struct {
	Kind    int `yaml:"kind"`
	Pin     int `yaml:"pin"`
	SubType int `yaml:"sub_type,omitempty"` // DHT model: 11, 21 or 22
}

// Defaults returns the built-in record.
func Defaults() Record {
	return Record{
		Version:    SchemaVersion,
		DeviceName: "relay-controller",
		Cloud: CloudConfig{
			Broker:    "tcps://io.adafruit.com:8883",
			RelayFeed: "relay",
			IPFeed:    "ip",
		},
		Outputs: OutputConfig{ActiveLow: true},
	}
}

// maxHostLabel is the longest DNS label an mDNS host name may use.
const maxHostLabel = 63

// AdvertisedName is the name announced over mDNS: MDNSName when set,
// otherwise DeviceName.
func (r Record) AdvertisedName() string {
	if r.MDNSName != "" {
		return r.MDNSName
	}
	return r.DeviceName
}

// Validate checks channel counts and kinds.
func (r Record) Validate() error {
	if len(r.MDNSName) > maxHostLabel {
		return fmt.Errorf("mdns name longer than %d characters", maxHostLabel)
	}
	if len(r.Outputs.Pins) > MaxOutputs {
		return fmt.Errorf("too many outputs: %d (max %d)", len(r.Outputs.Pins), MaxOutputs)
	}
	if len(r.Sensors) > MaxSensors {
		return fmt.Errorf("too many sensors: %d (max %d)", len(r.Sensors), MaxSensors)
	}
	for i, pin := range r.Outputs.Pins {
		if pin < 0 {
			return fmt.Errorf("output %d: invalid pin %d", i, pin)
		}
	}
	for i, s := range r.Sensors {
		switch s.Kind {
		case SensorNone, SensorLight, SensorMoisture:
		case SensorClimate:
			switch s.SubType {
			case 11, 21, 22:
			default:
				return fmt.Errorf("sensor %d: unsupported DHT type %d", i, s.SubType)
			}
		default:
			return fmt.Errorf("sensor %d: unknown kind %d", i, s.Kind)
		}
		if s.Pin < 0 {
			return fmt.Errorf("sensor %d: invalid pin %d", i, s.Pin)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	c.Outputs.Pins = append([]int(nil), r.Outputs.Pins...)
	c.Sensors = append([]SensorConfig(nil), r.Sensors...)
	c.State = append([]bool(nil), r.State...)
	return c
}
