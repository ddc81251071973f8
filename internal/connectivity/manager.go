// Package connectivity manages the network association lifecycle.
//
// Association is a tick-driven state machine: each attempt is waited out
// against an absolute deadline instead of sleeping, so the controller loop
// keeps servicing the indicator, relays and sensors while a link comes up.
package connectivity

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/indicator"
	"github.com/sweeney/relay-controller/internal/metrics"
)

// Defaults.
const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultMaxAttempts    = 5
	DefaultHealthInterval = 30 * time.Second
	DefaultRetryDelay     = 1 * time.Second
)

var (
	// ErrConnectivityExhausted is returned by Tick when the attempt bound is reached.
	ErrConnectivityExhausted = errors.New("connection attempts exhausted")
	// ErrNoCredentials is returned by Connect when no network is configured.
	ErrNoCredentials = errors.New("no network credentials configured")
	// ErrSetupMode is returned by Connect while setup mode is active.
	ErrSetupMode = errors.New("setup mode active")
)

// Link is the network stack collaborator.
type Link interface {
	// Begin starts association. It must not block.
	Begin() error
	// Connected reports whether the link is currently up.
	Connected() bool
	// Disconnect drops the current association.
	Disconnect()
}

// Indicator receives the program to show for each transition.
type Indicator interface {
	Start(p indicator.Program, now time.Time)
}

// Phase names the connectivity state.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Retrying
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// State is the connectivity variant. Attempt and Deadline are meaningful
// only while Connecting; NextCheck only while Retrying.
type State struct {
	Phase     Phase
	Attempt   int
	Deadline  time.Time
	NextCheck time.Time
}

// Transition reports a phase change made by Tick.
type Transition struct {
	From Phase
	To   Phase
}

// Config holds the timing and credentials.
type Config struct {
	SSID           string
	ConnectTimeout time.Duration
	MaxAttempts    int
	HealthInterval time.Duration
	RetryDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Manager owns the connectivity State. Not safe for concurrent use.
type Manager struct {
	cfg    Config
	link   Link
	ind    Indicator
	logger *zap.Logger

	st        State
	armed     bool // Connect has been requested at least once
	setupMode bool
	lastCheck time.Time
}

// New returns a disconnected manager.
func New(cfg Config, link Link, ind Indicator, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		link:   link,
		ind:    ind,
		logger: logger.With(zap.String("component", "connectivity")),
	}
}

// attemptWindow is how long each attempt is waited out.
func (m *Manager) attemptWindow() time.Duration {
	return m.cfg.ConnectTimeout / time.Duration(m.cfg.MaxAttempts)
}

// Connect starts association from any phase.
func (m *Manager) Connect(now time.Time) error {
	if m.setupMode {
		return ErrSetupMode
	}
	if m.cfg.SSID == "" {
		m.ind.Start(indicator.Error, now)
		return ErrNoCredentials
	}
	m.armed = true
	m.lastCheck = now
	return m.begin(now)
}

func (m *Manager) begin(now time.Time) error {
	m.ind.Start(indicator.WiFiConnecting, now)
	metrics.ConnectAttempts.Inc()
	m.st = State{Phase: Connecting, Attempt: 1, Deadline: now.Add(m.attemptWindow())}
	m.logger.Info("connecting", zap.String("ssid", m.cfg.SSID))
	if err := m.link.Begin(); err != nil {
		// The deadline still runs; a link that never comes up exhausts normally.
		m.logger.Warn("begin association", zap.Error(err))
		return fmt.Errorf("begin association: %w", err)
	}
	return nil
}

// Tick advances the state machine. It returns the transition made, if any,
// and ErrConnectivityExhausted on the tick that gives up.
func (m *Manager) Tick(now time.Time) (*Transition, error) {
	if m.setupMode {
		return nil, nil
	}

	from := m.st.Phase
	var err error

	switch m.st.Phase {
	case Connecting:
		err = m.tickConnecting(now)
	case Connected:
		m.tickConnected(now)
	case Retrying:
		if !now.Before(m.st.NextCheck) {
			err = m.begin(now)
		}
	case Disconnected:
		m.tickDisconnected(now)
	}

	if m.st.Phase == from {
		return nil, err
	}
	metrics.LinkUp.Set(boolGauge(m.st.Phase == Connected))
	m.logger.Info("phase changed",
		zap.Stringer("from", from),
		zap.Stringer("to", m.st.Phase),
	)
	return &Transition{From: from, To: m.st.Phase}, err
}

func (m *Manager) tickConnecting(now time.Time) error {
	if m.link.Connected() {
		m.st = State{Phase: Connected}
		m.lastCheck = now
		m.ind.Start(indicator.Success, now)
		return nil
	}
	if now.Before(m.st.Deadline) {
		return nil
	}
	if m.st.Attempt >= m.cfg.MaxAttempts {
		attempts := m.st.Attempt
		m.st = State{Phase: Disconnected}
		m.lastCheck = now
		m.ind.Start(indicator.Error, now)
		metrics.ConnectExhausted.Inc()
		m.logger.Warn("connection attempts exhausted", zap.Int("attempt", attempts))
		return fmt.Errorf("%w after %d attempts", ErrConnectivityExhausted, attempts)
	}
	m.st.Attempt++
	m.st.Deadline = now.Add(m.attemptWindow())
	m.logger.Debug("still connecting", zap.Int("attempt", m.st.Attempt))
	return nil
}

func (m *Manager) tickConnected(now time.Time) {
	if now.Sub(m.lastCheck) < m.cfg.HealthInterval {
		return
	}
	m.lastCheck = now
	if m.link.Connected() {
		return
	}
	m.logger.Warn("link lost")
	m.link.Disconnect()
	m.ind.Start(indicator.Error, now)
	m.st = State{Phase: Retrying, NextCheck: now.Add(m.cfg.RetryDelay)}
}

// tickDisconnected re-arms association on the health interval once Connect
// has been called, so an exhausted manager keeps trying.
func (m *Manager) tickDisconnected(now time.Time) {
	if !m.armed || now.Sub(m.lastCheck) < m.cfg.HealthInterval {
		return
	}
	m.lastCheck = now
	if m.link.Connected() {
		m.st = State{Phase: Connected}
		m.ind.Start(indicator.Success, now)
		return
	}
	m.st = State{Phase: Retrying, NextCheck: now.Add(m.cfg.RetryDelay)}
}

// SetSetupMode enables or disables setup mode. While enabled Tick does
// nothing and Connect is refused.
func (m *Manager) SetSetupMode(on bool) {
	m.setupMode = on
}

// SetupMode reports whether setup mode is active.
func (m *Manager) SetupMode() bool { return m.setupMode }

// State returns a copy of the current state.
func (m *Manager) State() State { return m.st }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
