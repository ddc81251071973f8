// Package sensor samples the configured sensor channels on a fixed cadence
// and keeps the last valid reading of each.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/metrics"
	"github.com/sweeney/relay-controller/internal/protocol"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 5 * time.Second

// Poller reads every channel once per interval. Samples live in fixed slots
// indexed by channel; a failed read leaves the slot untouched.
type Poller struct {
	src      Source
	interval time.Duration
	logger   *zap.Logger

	channels [MaxSensors]Channel
	samples  [MaxSensors]Sample
	n        int

	last   time.Time
	polled bool
}

// New creates a poller with immutable channel config.
func New(channels []Channel, src Source, interval time.Duration, logger *zap.Logger) (*Poller, error) {
	if len(channels) > MaxSensors {
		return nil, fmt.Errorf("sensor: %d channels configured, max %d", len(channels), MaxSensors)
	}
	if interval <= 0 {
		return nil, errors.New("sensor: interval must be > 0")
	}
	if src == nil && len(channels) > 0 {
		return nil, errors.New("sensor: source required")
	}
	p := &Poller{
		src:      src,
		interval: interval,
		logger:   logger.With(zap.String("component", "sensor")),
		n:        len(channels),
	}
	copy(p.channels[:], channels)
	return p, nil
}

// Tick polls when the interval has elapsed since the previous poll. The
// first call always polls. It returns the readings to broadcast, or nil.
func (p *Poller) Tick(now time.Time) []protocol.SensorReading {
	if p.polled && now.Sub(p.last) < p.interval {
		return nil
	}
	p.last = now
	p.polled = true
	return p.PollOnce()
}

// PollOnce reads every channel and returns one reading per channel that has
// a kind. Channels whose read failed report their previous sample.
func (p *Poller) PollOnce() []protocol.SensorReading {
	out := make([]protocol.SensorReading, 0, p.n)
	for i := 0; i < p.n; i++ {
		ch := p.channels[i]
		switch ch.Kind {
		case KindClimate:
			p.readClimate(i, ch)
		case KindLight, KindMoisture:
			p.readAnalog(i, ch)
		default:
			continue
		}
		out = append(out, p.reading(i))
	}
	return out
}

func (p *Poller) readClimate(i int, ch Channel) {
	temp, hum, err := p.src.ReadClimate(ch)
	if err != nil {
		p.discard(i, ch, err)
		return
	}
	// Temperature and humidity are validated independently; the sensor
	// often returns one good value and one NaN.
	if finite(temp) {
		p.samples[i].Temperature = temp
	} else {
		p.discard(i, ch, fmt.Errorf("%w: temperature %v", ErrReadInvalid, temp))
	}
	if finite(hum) {
		p.samples[i].Humidity = hum
	} else {
		p.discard(i, ch, fmt.Errorf("%w: humidity %v", ErrReadInvalid, hum))
	}
	if finite(temp) && finite(hum) {
		metrics.SensorReads.WithLabelValues(ch.Kind.String(), "ok").Inc()
	}
}

func (p *Poller) readAnalog(i int, ch Channel) {
	raw, err := p.src.ReadAnalog(ch)
	if err != nil {
		p.discard(i, ch, err)
		return
	}
	pct, err := Percent(raw)
	if err != nil {
		p.discard(i, ch, err)
		return
	}
	if ch.Kind == KindLight {
		p.samples[i].Light = float64(pct)
	} else {
		p.samples[i].Moisture = float64(pct)
	}
	metrics.SensorReads.WithLabelValues(ch.Kind.String(), "ok").Inc()
}

func (p *Poller) discard(i int, ch Channel, err error) {
	metrics.SensorReads.WithLabelValues(ch.Kind.String(), "invalid").Inc()
	p.logger.Debug("reading discarded",
		zap.Int("sensor", i),
		zap.Stringer("kind", ch.Kind),
		zap.Error(err),
	)
}

func (p *Poller) reading(i int) protocol.SensorReading {
	ch := p.channels[i]
	s := p.samples[i]
	r := protocol.SensorReading{Sensor: i, Type: int(ch.Kind)}
	switch ch.Kind {
	case KindClimate:
		r.Temperature = protocol.Float(s.Temperature)
		r.Humidity = protocol.Float(s.Humidity)
	case KindLight:
		r.Light = protocol.Float(s.Light)
	case KindMoisture:
		r.Moisture = protocol.Float(s.Moisture)
	}
	return r
}

// Samples returns a copy of the configured channels' samples.
func (p *Poller) Samples() []Sample {
	return append([]Sample(nil), p.samples[:p.n]...)
}

// Channels returns a copy of the configured channels.
func (p *Poller) Channels() []Channel {
	return append([]Channel(nil), p.channels[:p.n]...)
}

// Readings returns the current sample of every reporting channel without
// reading the hardware.
func (p *Poller) Readings() []protocol.SensorReading {
	out := make([]protocol.SensorReading, 0, p.n)
	for i := 0; i < p.n; i++ {
		if p.channels[i].Kind == KindNone {
			continue
		}
		out = append(out, p.reading(i))
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
