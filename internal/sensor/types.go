package sensor

import (
	"errors"
	"fmt"

	"github.com/sweeney/relay-controller/internal/store"
)

// MaxSensors is the number of sample slots.
const MaxSensors = store.MaxSensors

// ErrReadInvalid marks a reading that was discarded.
var ErrReadInvalid = errors.New("sensor read invalid")

// Kind selects how a channel is read and reported. Values are the wire codes.
type Kind int

const (
	KindNone     Kind = store.SensorNone
	KindClimate  Kind = store.SensorClimate
	KindLight    Kind = store.SensorLight
	KindMoisture Kind = store.SensorMoisture
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindClimate:
		return "climate"
	case KindLight:
		return "light"
	case KindMoisture:
		return "moisture"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Channel describes one configured sensor input.
type Channel struct {
	Kind    Kind
	Pin     int
	SubType int // DHT model for KindClimate
}

// ChannelsFromRecord converts the persisted sensor descriptors.
func ChannelsFromRecord(cfgs []store.SensorConfig) []Channel {
	out := make([]Channel, len(cfgs))
	for i, c := range cfgs {
		out[i] = Channel{Kind: Kind(c.Kind), Pin: c.Pin, SubType: c.SubType}
	}
	return out
}

// Sample is the last-known-good reading of one channel.
type Sample struct {
	Temperature float64
	Humidity    float64
	Light       float64
	Moisture    float64
}

// Source performs the physical reads. Implementations return an error or a
// non-finite value when a read fails.
type Source interface {
	// ReadClimate returns temperature (°C) and relative humidity (%).
	ReadClimate(ch Channel) (temperature, humidity float64, err error)

	// ReadAnalog returns the raw 10-bit ADC value.
	ReadAnalog(ch Channel) (int, error)
}

// Analog input range.
const (
	RawMin = 0
	RawMax = 1023
)

// Percent maps a raw ADC reading onto 0..100 with integer truncation.
func Percent(raw int) (int, error) {
	if raw < RawMin || raw > RawMax {
		return 0, fmt.Errorf("%w: raw %d outside [%d,%d]", ErrReadInvalid, raw, RawMin, RawMax)
	}
	return (raw - RawMin) * 100 / (RawMax - RawMin), nil
}
