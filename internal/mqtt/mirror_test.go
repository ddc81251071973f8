package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/indicator"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const (
	relayTopic = "alice/feeds/relay"
	ipTopic    = "alice/feeds/ip"
)

type programRecorder struct {
	programs []indicator.Program
}

func (r *programRecorder) Start(p indicator.Program, _ time.Time) {
	r.programs = append(r.programs, p)
}

func (r *programRecorder) last() indicator.Program {
	if len(r.programs) == 0 {
		return indicator.None
	}
	return r.programs[len(r.programs)-1]
}

func testConfig() Config {
	return Config{
		Enabled:   true,
		Username:  "alice",
		Key:       "aio_secret",
		RelayFeed: "relay",
		IPFeed:    "ip",
	}
}

func newMirror(t *testing.T, cfg Config) (*Mirror, *FakeSession, *programRecorder) {
	t.Helper()
	s := NewFakeSession()
	ind := &programRecorder{}
	m := New(cfg, s, ind, func() string { return "192.168.1.40" }, zap.NewNop())
	return m, s, ind
}

// handshake drives m to Online.
func handshake(t *testing.T, m *Mirror, s *FakeSession, now time.Time) {
	t.Helper()
	tok := NewFakeToken()
	s.Token = tok
	require.NoError(t, m.Start(now))
	tok.Complete(nil)
	s.Connected = true
	require.NoError(t, m.Tick(now))
	require.Equal(t, Online, m.State().Phase)
}

func TestFeedTopic(t *testing.T) {
	assert.Equal(t, "alice/feeds/relay", FeedTopic("alice", "relay"))
}

func TestParseState(t *testing.T) {
	on, err := ParseState([]byte("1"))
	require.NoError(t, err)
	assert.True(t, on)

	on, err = ParseState([]byte("0"))
	require.NoError(t, err)
	assert.False(t, on)

	_, err = ParseState([]byte("ON"))
	assert.Error(t, err)
}

func TestDisabledMirrorIsInert(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	m, s, ind := newMirror(t, cfg)

	require.NoError(t, m.Start(t0))
	require.NoError(t, m.Tick(t0))
	m.Push(true)

	assert.Equal(t, Disabled, m.State().Phase)
	assert.Equal(t, 0, s.Connects)
	assert.Equal(t, 0, m.State().Buffered)
	assert.Empty(t, ind.programs)
}

func TestStartWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Key = ""
	m, s, ind := newMirror(t, cfg)

	err := m.Start(t0)
	require.ErrorIs(t, err, ErrCloudUnavailable)
	assert.Equal(t, Failed, m.State().Phase)
	assert.Equal(t, 0, s.Connects)
	assert.Equal(t, indicator.Error, ind.last())
}

func TestHandshakeSucceeds(t *testing.T) {
	m, s, ind := newMirror(t, testConfig())
	tok := NewFakeToken()
	s.Token = tok

	require.NoError(t, m.Start(t0))
	st := m.State()
	assert.Equal(t, Handshaking, st.Phase)
	assert.Equal(t, t0.Add(DefaultHandshakeTimeout), st.Deadline)
	assert.Equal(t, indicator.CloudConnecting, ind.last())

	require.NoError(t, m.Tick(t0.Add(time.Second)))
	assert.Equal(t, Handshaking, m.State().Phase, "pending token does not block or advance")

	tok.Complete(nil)
	s.Connected = true
	require.NoError(t, m.Tick(t0.Add(2*time.Second)))

	assert.Equal(t, Online, m.State().Phase)
	assert.Equal(t, indicator.Success, ind.last())
	assert.Contains(t, s.Handlers, relayTopic)
	assert.Equal(t, []string{"192.168.1.40"}, s.PayloadsFor(ipTopic))
}

func TestHandshakeTimesOutAtDeadline(t *testing.T) {
	m, s, ind := newMirror(t, testConfig())
	require.NoError(t, m.Start(t0))

	require.NoError(t, m.Tick(t0.Add(DefaultHandshakeTimeout-time.Millisecond)))
	assert.Equal(t, Handshaking, m.State().Phase)

	err := m.Tick(t0.Add(DefaultHandshakeTimeout))
	require.ErrorIs(t, err, ErrCloudUnavailable)
	assert.Equal(t, Failed, m.State().Phase)
	assert.Equal(t, 1, s.Disconnects)
	assert.Equal(t, indicator.Error, ind.last())

	// A failed mirror stays quiet until restarted.
	require.NoError(t, m.Tick(t0.Add(time.Minute)))
	assert.Equal(t, Failed, m.State().Phase)
}

func TestHandshakeTokenError(t *testing.T) {
	m, s, _ := newMirror(t, testConfig())
	tok := NewFakeToken()
	s.Token = tok
	require.NoError(t, m.Start(t0))

	tok.Complete(errors.New("not authorized"))
	err := m.Tick(t0.Add(time.Second))
	require.ErrorIs(t, err, ErrCloudUnavailable)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Equal(t, Failed, m.State().Phase)
}

func TestRestartAfterFailure(t *testing.T) {
	m, s, _ := newMirror(t, testConfig())
	require.NoError(t, m.Start(t0))
	m.Tick(t0.Add(DefaultHandshakeTimeout))
	require.Equal(t, Failed, m.State().Phase)

	handshake(t, m, s, t0.Add(time.Minute))
	assert.Equal(t, 2, s.Connects)
}

func TestPushWhileOfflineIsReplayed(t *testing.T) {
	m, s, _ := newMirror(t, testConfig())

	m.Push(true)
	m.Push(false)
	m.Push(true)
	assert.Equal(t, 3, m.State().Buffered)
	assert.Empty(t, s.Publishes)

	handshake(t, m, s, t0)
	assert.Equal(t, []string{"1", "0", "1"}, s.PayloadsFor(relayTopic))
	assert.Equal(t, 0, m.State().Buffered)

	m.Push(false)
	assert.Equal(t, []string{"1", "0", "1", "0"}, s.PayloadsFor(relayTopic))
}

func TestPushBufferIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 2
	m, s, _ := newMirror(t, cfg)

	m.Push(true)
	m.Push(false)
	m.Push(true)
	assert.Equal(t, 2, m.State().Buffered)

	handshake(t, m, s, t0)
	assert.Equal(t, []string{"0", "1"}, s.PayloadsFor(relayTopic))
}

func TestPublishErrorBuffers(t *testing.T) {
	m, s, _ := newMirror(t, testConfig())
	handshake(t, m, s, t0)

	s.PublishError = errors.New("broken pipe")
	m.Push(true)
	assert.Equal(t, 1, m.State().Buffered)
}

func TestRelayFeedCommands(t *testing.T) {
	m, s, _ := newMirror(t, testConfig())
	var got []bool
	m.OnRelayFeed(func(on bool) { got = append(got, on) })
	handshake(t, m, s, t0)

	require.True(t, s.Deliver(relayTopic, "1"))
	require.True(t, s.Deliver(relayTopic, "0"))
	require.True(t, s.Deliver(relayTopic, "toggle"))

	assert.Equal(t, []bool{true, false}, got)
}

func TestAddressPublishedOnInterval(t *testing.T) {
	m, s, _ := newMirror(t, testConfig())
	handshake(t, m, s, t0)
	require.Len(t, s.PayloadsFor(ipTopic), 1)

	m.Tick(t0.Add(DefaultIPInterval - time.Second))
	assert.Len(t, s.PayloadsFor(ipTopic), 1)

	m.Tick(t0.Add(DefaultIPInterval))
	assert.Len(t, s.PayloadsFor(ipTopic), 2)
}

func TestSessionLossAndRestore(t *testing.T) {
	m, s, ind := newMirror(t, testConfig())
	handshake(t, m, s, t0)

	s.Connected = false
	require.NoError(t, m.Tick(t0.Add(time.Second)))
	assert.Equal(t, Offline, m.State().Phase)

	m.Push(true)
	assert.Equal(t, 1, m.State().Buffered)

	s.Connected = true
	require.NoError(t, m.Tick(t0.Add(2*time.Second)))
	assert.Equal(t, Online, m.State().Phase)
	assert.Equal(t, indicator.Success, ind.last())
	assert.Equal(t, []string{"1"}, s.PayloadsFor(relayTopic))
}
