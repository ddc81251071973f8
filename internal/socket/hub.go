// Package socket serves the relay push protocol over WebSocket.
//
// Each peer gets a buffered send channel drained by its own write pump.
// Broadcast never blocks: a peer whose buffer is full misses the message and
// catches up on the next state change.
package socket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/controller"
	"github.com/sweeney/relay-controller/internal/metrics"
	"github.com/sweeney/relay-controller/internal/protocol"
)

const (
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	readLimit      = 512
	sendBufferSize = 16
)

// Sink receives what peers hand to the controller loop. Both methods must
// not block.
type Sink interface {
	Submit(cmd controller.Command) error
	Join(p controller.Peer) bool
}

// Peer is one connected client.
type Peer struct {
	id   string
	hub  *Hub
	conn *ws.Conn
	send chan []byte

	closed bool // guarded by hub.mu
}

// ID returns the peer's random identifier.
func (p *Peer) ID() string { return p.id }

// Send queues msg for this peer only.
func (p *Peer) Send(msg protocol.Message) bool {
	data, err := msg.Encode()
	if err != nil {
		p.hub.logger.Error("encode message", zap.Error(err))
		return false
	}
	p.hub.mu.RLock()
	defer p.hub.mu.RUnlock()
	return p.hub.offer(p, data)
}

// Hub is the registry of connected peers.
type Hub struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	sink   Sink
	logger *zap.Logger
}

// NewHub creates an empty hub that forwards commands and joins to sink.
func NewHub(sink Sink, logger *zap.Logger) *Hub {
	return &Hub{
		peers:  make(map[string]*Peer),
		sink:   sink,
		logger: logger.With(zap.String("component", "socket")),
	}
}

func (h *Hub) newPeer(conn *ws.Conn) *Peer {
	return &Peer{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (h *Hub) register(p *Peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	n := len(h.peers)
	h.mu.Unlock()
	metrics.SocketPeers.Set(float64(n))
	h.logger.Info("peer connected", zap.String("peer", p.id), zap.Int("peers", n))
}

func (h *Hub) unregister(p *Peer) {
	h.mu.Lock()
	if _, ok := h.peers[p.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p.id)
	p.closed = true
	close(p.send)
	n := len(h.peers)
	h.mu.Unlock()
	metrics.SocketPeers.Set(float64(n))
	h.logger.Info("peer disconnected", zap.String("peer", p.id), zap.Int("peers", n))
}

// offer does a non-blocking send. Caller holds h.mu.
func (h *Hub) offer(p *Peer, data []byte) bool {
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		metrics.SocketDrops.Inc()
		h.logger.Warn("send buffer full, dropping message", zap.String("peer", p.id))
		return false
	}
}

// Broadcast sends msg to every connected peer.
func (h *Hub) Broadcast(msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("encode broadcast", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.peers {
		h.offer(p, data)
	}
}

// Len returns the number of connected peers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		h.unregister(p)
	}
}

// writePump runs in a goroutine per peer. It writes outgoing messages and
// sends periodic pings until the send channel is closed.
func (p *Peer) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		pingTicker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				p.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")) //nolint:errcheck
				return
			}
			if err := p.conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}

		case <-pingTicker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := p.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump runs in the handler goroutine. Each text frame is decoded as a
// relay command and handed to the sink; anything else is logged and
// ignored. When it returns the peer is unregistered.
func (p *Peer) readPump() {
	defer func() {
		p.hub.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(readLimit)
	p.conn.SetReadDeadline(time.Now().Add(pongTimeout)) //nolint:errcheck
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	logger := p.hub.logger.With(zap.String("peer", p.id))
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure, ws.CloseNormalClosure) {
				logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		// Any inbound frame counts as liveness.
		p.conn.SetReadDeadline(time.Now().Add(pongTimeout)) //nolint:errcheck
		if kind != ws.TextMessage {
			continue
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			logger.Warn("ignoring message", zap.Error(err))
			continue
		}
		if err := p.hub.sink.Submit(controller.Command{Index: cmd.Index, On: cmd.State}); err != nil {
			logger.Warn("command rejected", zap.Int("index", cmd.Index), zap.Error(err))
		}
	}
}
