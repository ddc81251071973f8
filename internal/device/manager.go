// Package device applies commanded relay states, persists them and
// broadcasts the result.
//
// Every state change, whether it comes from a socket peer, the cloud feed or
// the startup restore, goes through Manager.Apply.
package device

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/metrics"
	"github.com/sweeney/relay-controller/internal/protocol"
	"github.com/sweeney/relay-controller/internal/store"
)

// ErrInvalidChannel is returned for an index that addresses no configured output.
var ErrInvalidChannel = errors.New("invalid channel")

// Broadcaster sends a message to every connected peer without blocking.
type Broadcaster interface {
	Broadcast(msg protocol.Message)
}

// Mirror receives the aggregate state after every apply. Push must not block.
type Mirror interface {
	Push(on bool)
}

// Manager owns the per-output state. Not safe for concurrent use; the
// controller loop is its only caller.
type Manager struct {
	outputs gpio.Outputs
	store   store.Store
	bc      Broadcaster
	mirror  Mirror
	logger  *zap.Logger

	state   []bool
	written []bool // line has been driven at least once

	// rec is the record loaded at startup; persist rewrites it with the
	// current state rather than re-reading the file.
	rec    store.Record
	loaded bool
}

// New returns a manager for every line in outputs, all initially off.
func New(outputs gpio.Outputs, st store.Store, bc Broadcaster, logger *zap.Logger) *Manager {
	n := outputs.Len()
	return &Manager{
		outputs: outputs,
		store:   st,
		bc:      bc,
		logger:  logger.With(zap.String("component", "device")),
		state:   make([]bool, n),
		written: make([]bool, n),
	}
}

// SetMirror attaches the cloud mirror. A nil mirror disables pushes.
func (m *Manager) SetMirror(mirror Mirror) {
	m.mirror = mirror
}

// Apply drives output index to on, persists the full state and broadcasts the
// new channel state. The physical line is only written when its level
// changes, so repeated identical commands never toggle a relay. The returned
// bool reports whether the line was written.
func (m *Manager) Apply(index int, on bool) (bool, error) {
	if index < 0 || index >= len(m.state) {
		metrics.RelayApplies.WithLabelValues("invalid").Inc()
		return false, fmt.Errorf("%w: output %d (have %d)", ErrInvalidChannel, index, len(m.state))
	}

	changed := false
	if !m.written[index] || m.state[index] != on {
		if err := m.outputs.Write(index, on); err != nil {
			metrics.RelayApplies.WithLabelValues("write_error").Inc()
			return false, fmt.Errorf("write output %d: %w", index, err)
		}
		m.written[index] = true
		changed = true
	}
	m.state[index] = on

	if changed {
		metrics.RelayApplies.WithLabelValues("changed").Inc()
		m.logger.Info("output applied", zap.Int("index", index), zap.Bool("on", on))
	} else {
		metrics.RelayApplies.WithLabelValues("unchanged").Inc()
	}
	metrics.RelayState.WithLabelValues(strconv.Itoa(index)).Set(boolGauge(on))

	m.persist()
	if m.bc != nil {
		m.bc.Broadcast(protocol.NewRelay(index, on))
	}
	if m.mirror != nil {
		m.mirror.Push(m.Any())
	}
	return changed, nil
}

// ApplyAll drives every output to on.
func (m *Manager) ApplyAll(on bool) error {
	var errs []error
	for i := range m.state {
		if _, err := m.Apply(i, on); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore reads the persisted record, keeps it for later saves and applies
// every output through Apply. Outputs with no persisted entry are restored off.
func (m *Manager) Restore() error {
	if err := m.load(); err != nil {
		return err
	}

	saved := m.rec.State
	var errs []error
	for i := range m.state {
		on := i < len(saved) && saved[i]
		if _, err := m.Apply(i, on); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Info("state restored", zap.Bools("state", m.Snapshot()))
	return errors.Join(errs...)
}

func (m *Manager) load() error {
	rec, err := m.store.Load()
	if err != nil && !errors.Is(err, store.ErrConfigVersionMismatch) {
		return fmt.Errorf("load state: %w", err)
	}
	m.rec = rec
	m.loaded = true
	return nil
}

// persist saves the held record with the current state. The record is only
// read from the store once, so a file that disappears while running is
// rewritten from memory instead of from defaults. Failures are logged; the
// physical output and broadcast still stand.
func (m *Manager) persist() {
	if !m.loaded {
		if err := m.load(); err != nil {
			metrics.PersistFailures.Inc()
			m.logger.Error("load record for persist", zap.Error(err))
			return
		}
	}
	m.rec.State = m.Snapshot()
	if err := m.store.Save(m.rec); err != nil {
		metrics.PersistFailures.Inc()
		m.logger.Error("persist state", zap.Error(err))
	}
}

// Snapshot returns a copy of the current per-output state.
func (m *Manager) Snapshot() []bool {
	return append([]bool(nil), m.state...)
}

// State returns the state of output index; false for an unknown index.
func (m *Manager) State(index int) bool {
	if index < 0 || index >= len(m.state) {
		return false
	}
	return m.state[index]
}

// Any reports whether at least one output is on.
func (m *Manager) Any() bool {
	for _, on := range m.state {
		if on {
			return true
		}
	}
	return false
}

// Len returns the number of outputs.
func (m *Manager) Len() int { return len(m.state) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
