package socket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	wslib "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/controller"
	"github.com/sweeney/relay-controller/internal/protocol"
)

// chanSink hands everything to buffered channels the test reads from.
type chanSink struct {
	commands chan controller.Command
	joins    chan controller.Peer
	reject   error
}

func newChanSink() *chanSink {
	return &chanSink{
		commands: make(chan controller.Command, 8),
		joins:    make(chan controller.Peer, 8),
	}
}

func (s *chanSink) Submit(cmd controller.Command) error {
	if s.reject != nil {
		return s.reject
	}
	s.commands <- cmd
	return nil
}

func (s *chanSink) Join(p controller.Peer) bool {
	s.joins <- p
	return true
}

// wsDialURL converts an httptest server URL to a WebSocket URL.
func wsDialURL(serverURL string) string {
	return strings.Replace(serverURL, "http://", "ws://", 1) + "/ws"
}

func newTestServer(t *testing.T) (*Hub, *chanSink, *httptest.Server) {
	t.Helper()
	sink := newChanSink()
	hub := NewHub(sink, zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, sink, srv
}

func dial(t *testing.T, srv *httptest.Server) *wslib.Conn {
	t.Helper()
	conn, resp, err := wslib.DefaultDialer.Dial(wsDialURL(srv.URL), nil)
	require.NoError(t, err, "WebSocket dial should succeed")
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitJoin(t *testing.T, sink *chanSink) controller.Peer {
	t.Helper()
	select {
	case p := <-sink.joins:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("peer never joined")
		return nil
	}
}

func readText(t *testing.T, conn *wslib.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wslib.TextMessage, kind)
	return string(data)
}

func TestHandlerRejectsNonGet(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/ws", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestJoinedPeerReceivesDirectSend(t *testing.T) {
	hub, sink, srv := newTestServer(t)
	conn := dial(t, srv)

	p := waitJoin(t, sink)
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, 1, hub.Len())

	require.True(t, p.Send(protocol.NewRelay(0, true)))
	assert.Equal(t, `{"type":"relay","index":0,"state":true}`, readText(t, conn))
}

func TestInboundCommandReachesSink(t *testing.T) {
	_, sink, srv := newTestServer(t)
	conn := dial(t, srv)
	waitJoin(t, sink)

	require.NoError(t, conn.WriteMessage(wslib.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(wslib.TextMessage, []byte(`{"type":"led","index":0,"state":true}`)))
	require.NoError(t, conn.WriteMessage(wslib.TextMessage, []byte(`{"type":"relay","index":1,"state":true}`)))

	select {
	case cmd := <-sink.commands:
		assert.Equal(t, controller.Command{Index: 1, On: true}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("command never submitted")
	}
	assert.Empty(t, sink.commands, "malformed and unknown messages are ignored")
}

func TestBroadcastReachesEveryPeer(t *testing.T) {
	hub, sink, srv := newTestServer(t)
	a := dial(t, srv)
	waitJoin(t, sink)
	b := dial(t, srv)
	waitJoin(t, sink)

	hub.Broadcast(protocol.SensorReading{Sensor: 2, Type: 3, Moisture: protocol.Float(50)})

	want := `{"sensor":2,"type":3,"moisture":50}`
	assert.Equal(t, want, readText(t, a))
	assert.Equal(t, want, readText(t, b))
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, sink, srv := newTestServer(t)
	conn := dial(t, srv)
	p := waitJoin(t, sink)
	require.Equal(t, 1, hub.Len())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, p.Send(protocol.NewRelay(0, false)), "send to a gone peer is refused")
}

func TestBroadcastDropsOnFullBuffer(t *testing.T) {
	hub := NewHub(newChanSink(), zap.NewNop())
	slow := hub.newPeer(nil)
	hub.register(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBufferSize*2; i++ {
			hub.Broadcast(protocol.NewRelay(0, i%2 == 0))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow peer")
	}
	assert.Len(t, slow.send, sendBufferSize)
	assert.False(t, slow.Send(protocol.NewRelay(1, true)))
}

func TestCloseDisconnectsPeers(t *testing.T) {
	hub, sink, srv := newTestServer(t)
	conn := dial(t, srv)
	waitJoin(t, sink)

	hub.Close()
	assert.Equal(t, 0, hub.Len())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, _, err := conn.ReadMessage()
	assert.True(t, wslib.IsCloseError(err, wslib.CloseNormalClosure), "got %v", err)
}
