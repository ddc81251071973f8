package mqtt

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/indicator"
	"github.com/sweeney/relay-controller/internal/metrics"
)

// Defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultIPInterval       = 5 * time.Minute
	DefaultBufferSize       = 32
)

// Indicator receives the program to show for each handshake outcome.
type Indicator interface {
	Start(p indicator.Program, now time.Time)
}

// Phase names the mirror state.
type Phase int

const (
	Disabled Phase = iota
	Offline
	Handshaking
	Online
	Failed
)

func (p Phase) String() string {
	switch p {
	case Disabled:
		return "disabled"
	case Offline:
		return "offline"
	case Handshaking:
		return "handshaking"
	case Online:
		return "online"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the mirror variant. Deadline is meaningful only while Handshaking.
type State struct {
	Phase    Phase
	Deadline time.Time
	Buffered int
}

// Config holds the account and timing.
type Config struct {
	Enabled          bool
	Username         string
	Key              string
	RelayFeed        string
	IPFeed           string
	HandshakeTimeout time.Duration
	IPInterval       time.Duration
	BufferSize       int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.IPInterval <= 0 {
		c.IPInterval = DefaultIPInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// Mirror pushes relay state to the relay feed and relays feed commands back.
// Apart from the OnRelayFeed callback it is owned by the controller loop and
// not safe for concurrent use.
type Mirror struct {
	cfg     Config
	session Session
	ind     Indicator
	addr    func() string
	logger  *zap.Logger

	st      State
	token   Token
	buf     *outbox
	lastIP  time.Time
	onRelay func(on bool)
}

// New returns a mirror in Disabled (cfg.Enabled false) or Offline.
// addr reports the device address published to the IP feed; it may return
// "" when no address is known.
func New(cfg Config, session Session, ind Indicator, addr func() string, logger *zap.Logger) *Mirror {
	cfg = cfg.withDefaults()
	m := &Mirror{
		cfg:     cfg,
		session: session,
		ind:     ind,
		addr:    addr,
		logger:  logger.With(zap.String("component", "cloud")),
		buf:     newOutbox(cfg.BufferSize),
	}
	if cfg.Enabled {
		m.st.Phase = Offline
	}
	return m
}

// OnRelayFeed sets the handler for inbound relay feed values. fn is called
// from the broker client's goroutine and must only hand the value on.
func (m *Mirror) OnRelayFeed(fn func(on bool)) {
	m.onRelay = fn
}

// Start begins the handshake. It never blocks; the outcome is observed by
// Tick. Start is a no-op while disabled, handshaking or online.
func (m *Mirror) Start(now time.Time) error {
	switch m.st.Phase {
	case Disabled, Handshaking, Online:
		return nil
	}
	if m.cfg.Username == "" || m.cfg.Key == "" {
		m.st = State{Phase: Failed}
		m.ind.Start(indicator.Error, now)
		return fmt.Errorf("%w: missing credentials", ErrCloudUnavailable)
	}
	m.token = m.session.Connect()
	m.st = State{Phase: Handshaking, Deadline: now.Add(m.cfg.HandshakeTimeout)}
	m.ind.Start(indicator.CloudConnecting, now)
	m.logger.Info("connecting", zap.String("user", m.cfg.Username))
	return nil
}

// Tick advances the handshake and the periodic address publish. It returns
// ErrCloudUnavailable on the tick that gives up.
func (m *Mirror) Tick(now time.Time) error {
	switch m.st.Phase {
	case Handshaking:
		select {
		case <-m.token.Done():
			if err := m.token.Error(); err != nil {
				return m.fail(now, err)
			}
			m.online(now)
		default:
			if !now.Before(m.st.Deadline) {
				return m.fail(now, fmt.Errorf("handshake timed out after %s", m.cfg.HandshakeTimeout))
			}
		}
	case Online:
		if !m.session.IsConnected() {
			m.st = State{Phase: Offline}
			metrics.CloudOnline.Set(0)
			m.logger.Warn("session lost")
			return nil
		}
		if now.Sub(m.lastIP) >= m.cfg.IPInterval {
			m.publishIP(now)
		}
	case Offline:
		// The client reconnects on its own once a session has been up.
		if m.token != nil && m.session.IsConnected() {
			m.logger.Info("session restored")
			m.online(now)
		}
	}
	return nil
}

func (m *Mirror) fail(now time.Time, cause error) error {
	m.st = State{Phase: Failed}
	m.token = nil
	m.session.Disconnect()
	m.ind.Start(indicator.Error, now)
	metrics.CloudOnline.Set(0)
	m.logger.Warn("handshake failed", zap.Error(cause))
	return fmt.Errorf("%w: %v", ErrCloudUnavailable, cause)
}

func (m *Mirror) online(now time.Time) {
	m.st = State{Phase: Online}
	m.ind.Start(indicator.Success, now)
	metrics.CloudOnline.Set(1)
	m.logger.Info("online")

	topic := FeedTopic(m.cfg.Username, m.cfg.RelayFeed)
	if err := m.session.Subscribe(topic, m.handleRelayFeed); err != nil {
		m.logger.Warn("subscribe relay feed", zap.String("topic", topic), zap.Error(err))
	}

	pending, dropped := m.buf.drain()
	if len(pending) > 0 {
		m.logger.Info("replaying buffered pushes", zap.Int("count", len(pending)), zap.Int("dropped", dropped))
	}
	for _, msg := range pending {
		m.publish(msg)
	}
	m.publishIP(now)
}

func (m *Mirror) handleRelayFeed(payload []byte) {
	on, err := ParseState(payload)
	if err != nil {
		m.logger.Warn("ignoring relay feed value", zap.Error(err))
		return
	}
	if m.onRelay != nil {
		m.onRelay(on)
	}
}

func (m *Mirror) publishIP(now time.Time) {
	m.lastIP = now
	if m.cfg.IPFeed == "" || m.addr == nil {
		return
	}
	ip := m.addr()
	if ip == "" {
		return
	}
	if err := m.session.Publish(FeedTopic(m.cfg.Username, m.cfg.IPFeed), []byte(ip)); err != nil {
		m.logger.Warn("publish address", zap.Error(err))
	}
}

// Push mirrors the aggregate relay state. While not online the value is
// buffered and replayed on the next successful handshake.
func (m *Mirror) Push(on bool) {
	if m.st.Phase == Disabled {
		return
	}
	msg := bufferedMsg{topic: FeedTopic(m.cfg.Username, m.cfg.RelayFeed), payload: FormatState(on)}
	if m.st.Phase == Online && m.session.IsConnected() {
		m.publish(msg)
		return
	}
	m.buffer(msg)
}

func (m *Mirror) publish(msg bufferedMsg) {
	if err := m.session.Publish(msg.topic, msg.payload); err != nil {
		metrics.CloudPushes.WithLabelValues("error").Inc()
		m.logger.Warn("publish failed, buffering", zap.String("topic", msg.topic), zap.Error(err))
		m.buffer(msg)
		return
	}
	metrics.CloudPushes.WithLabelValues("sent").Inc()
}

func (m *Mirror) buffer(msg bufferedMsg) {
	metrics.CloudPushes.WithLabelValues("buffered").Inc()
	if m.buf.push(msg) {
		m.logger.Warn("offline buffer full, dropping oldest push", zap.Int("capacity", m.cfg.BufferSize))
	}
}

// State returns a copy of the current state.
func (m *Mirror) State() State {
	st := m.st
	st.Buffered = m.buf.len()
	return st
}

// Close drops the session if one was started.
func (m *Mirror) Close() {
	if m.token != nil {
		m.session.Disconnect()
	}
}
