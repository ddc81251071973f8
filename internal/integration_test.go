package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	wslib "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/clock"
	"github.com/sweeney/relay-controller/internal/connectivity"
	"github.com/sweeney/relay-controller/internal/controller"
	"github.com/sweeney/relay-controller/internal/device"
	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/indicator"
	"github.com/sweeney/relay-controller/internal/sensor"
	"github.com/sweeney/relay-controller/internal/socket"
	"github.com/sweeney/relay-controller/internal/status"
	"github.com/sweeney/relay-controller/internal/store"
	"github.com/sweeney/relay-controller/internal/web"
)

// stack is the daemon wired the way main wires it, with fake hardware.
type stack struct {
	outs *gpio.FakeOutputs
	ts   *httptest.Server
	stop func()
}

func startStack(t *testing.T, path string, n int, src *sensor.FakeSource, channels []sensor.Channel) *stack {
	t.Helper()
	logger := zap.NewNop()

	st := store.NewFileStore(path)
	rec, err := st.Load()
	if err != nil {
		t.Fatalf("load record: %v", err)
	}

	outs := gpio.NewFakeOutputs(n)
	ind := indicator.New(gpio.NewFakeLED(), logger)
	conn := connectivity.New(connectivity.Config{SSID: rec.WiFi.SSID}, &connectivity.FakeLink{}, ind, logger)

	inbox := controller.NewInbox()
	hub := socket.NewHub(inbox, logger)
	dev := device.New(outs, st, hub, logger)

	poller, err := sensor.New(channels, src, 20*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("sensor.New: %v", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{DeviceName: rec.DeviceName})
	tracker.SetPeerCounter(hub.Len)
	ts := httptest.NewServer(web.New(":0", tracker, hub, logger).Handler())

	rt := controller.New(controller.Components{
		Clock:        clock.System{},
		Indicator:    ind,
		Connectivity: conn,
		Device:       dev,
		Sensors:      poller,
		Broadcaster:  hub,
		Tracker:      tracker,
	}, logger)
	rt.Start(time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(5 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx, ticker.C, inbox.Commands(), inbox.Joins()) }()

	s := &stack{outs: outs, ts: ts}
	stopped := false
	s.stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
		ticker.Stop()
		hub.Close()
		ts.Close()
	}
	t.Cleanup(s.stop)
	return s
}

func (s *stack) dial(t *testing.T) *wslib.Conn {
	t.Helper()
	url := strings.Replace(s.ts.URL, "http://", "ws://", 1) + "/ws"
	conn, _, err := wslib.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *wslib.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

// readRelay skips sensor traffic and returns the next relay message.
func readRelay(t *testing.T, conn *wslib.Conn) string {
	t.Helper()
	for i := 0; i < 50; i++ {
		if m := readMsg(t, conn); strings.Contains(m, `"type":"relay"`) {
			return m
		}
	}
	t.Fatal("no relay message")
	return ""
}

func writeRecord(t *testing.T, path string, pins []int) {
	t.Helper()
	rec := store.Defaults()
	rec.Outputs.Pins = pins
	if err := store.NewFileStore(path).Save(rec); err != nil {
		t.Fatalf("save record: %v", err)
	}
}

// TestIntegrationCommandFlow drives a relay from one socket peer and checks
// the output, the record on disk and the broadcast to a second peer.
func TestIntegrationCommandFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	writeRecord(t, path, []int{17, 27})

	s := startStack(t, path, 2, sensor.NewFakeSource(), nil)

	a := s.dial(t)
	wantDump := []string{
		`{"type":"relay","index":0,"state":false}`,
		`{"type":"relay","index":1,"state":false}`,
	}
	for i, want := range wantDump {
		if got := readMsg(t, a); got != want {
			t.Errorf("peer A dump %d: got %s, want %s", i, got, want)
		}
	}
	b := s.dial(t)
	for i, want := range wantDump {
		if got := readMsg(t, b); got != want {
			t.Errorf("peer B dump %d: got %s, want %s", i, got, want)
		}
	}

	if err := a.WriteMessage(wslib.TextMessage, []byte(`{"type":"relay","index":1,"state":true}`)); err != nil {
		t.Fatalf("write command: %v", err)
	}

	want := `{"type":"relay","index":1,"state":true}`
	if got := readMsg(t, b); got != want {
		t.Errorf("peer B broadcast: got %s, want %s", got, want)
	}
	if got := readMsg(t, a); got != want {
		t.Errorf("peer A broadcast: got %s, want %s", got, want)
	}

	resp, err := http.Get(s.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)
	resp.Body.Close()
	if sj.Status.Socket.Peers != 2 {
		t.Errorf("peers: got %d, want 2", sj.Status.Socket.Peers)
	}

	s.stop()

	if !reflect.DeepEqual(s.outs.States, []bool{false, true}) {
		t.Errorf("outputs: got %v, want [false true]", s.outs.States)
	}
	rec, err := store.NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if !reflect.DeepEqual(rec.State, []bool{false, true}) {
		t.Errorf("persisted state: got %v, want [false true]", rec.State)
	}
}

// TestIntegrationRestartRestoresOutputs simulates a power cycle.
func TestIntegrationRestartRestoresOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	writeRecord(t, path, []int{5, 6, 13})

	first := startStack(t, path, 3, sensor.NewFakeSource(), nil)
	peer := first.dial(t)
	for i := 0; i < 3; i++ {
		readMsg(t, peer)
	}
	for _, cmd := range []string{
		`{"type":"relay","index":0,"state":true}`,
		`{"type":"relay","index":2,"state":true}`,
		`{"type":"relay","index":0,"state":false}`,
	} {
		if err := peer.WriteMessage(wslib.TextMessage, []byte(cmd)); err != nil {
			t.Fatalf("write: %v", err)
		}
		readMsg(t, peer)
	}
	first.stop()
	before := append([]bool(nil), first.outs.States...)

	second := startStack(t, path, 3, sensor.NewFakeSource(), nil)
	second.stop()

	if !reflect.DeepEqual(second.outs.States, before) {
		t.Errorf("restored outputs: got %v, want %v", second.outs.States, before)
	}
	if !reflect.DeepEqual(before, []bool{false, false, true}) {
		t.Errorf("outputs before restart: got %v, want [false false true]", before)
	}
}

// TestIntegrationMissingRecordStartsFromDefaults checks a first boot.
func TestIntegrationMissingRecordStartsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")

	rec, err := store.NewFileStore(path).Load()
	if !errors.Is(err, store.ErrConfigVersionMismatch) {
		t.Fatalf("expected a reset report for a missing record, got %v", err)
	}
	if rec.Version != store.SchemaVersion || rec.DeviceName != "relay-controller" {
		t.Errorf("expected defaults, got %+v", rec)
	}

	// The defaults were written, so the daemon starts cleanly.
	s := startStack(t, path, 0, sensor.NewFakeSource(), nil)
	s.stop()
}

// TestIntegrationSensorBroadcast checks readings reach peers with the last
// good value kept across a failed read.
func TestIntegrationSensorBroadcast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	writeRecord(t, path, []int{17})

	src := sensor.NewFakeSource()
	src.Analog[0] = []sensor.AnalogSample{{Raw: 512}, {Raw: -4}}
	s := startStack(t, path, 1, src, []sensor.Channel{{Kind: sensor.KindMoisture, Pin: 0}})

	peer := s.dial(t)
	readRelay(t, peer)

	// The join dump carries the pre-poll value; polls carry the last good one.
	seen := 0
	for seen < 3 {
		m := readMsg(t, peer)
		switch m {
		case `{"sensor":0,"type":3,"moisture":50}`:
			seen++
		case `{"sensor":0,"type":3,"moisture":0}`:
			if seen > 0 {
				t.Fatalf("reading regressed after a failed read: %s", m)
			}
		default:
			t.Fatalf("unexpected message: %s", m)
		}
	}
}
