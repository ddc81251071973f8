package socket

import (
	"net/http"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServeHTTP upgrades GET /ws, registers the peer, asks the loop to send it
// the current state and runs the pumps until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The control page is served from the device itself, but peers on
		// the local network may also connect from elsewhere.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader writes the error response itself.
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	p := h.newPeer(conn)
	h.register(p)
	if !h.sink.Join(p) {
		h.logger.Warn("join dropped, peer waits for the next broadcast", zap.String("peer", p.id))
	}

	// writePump runs in a separate goroutine; readPump blocks until the
	// connection closes and then unregisters the peer.
	go p.writePump()
	p.readPump()
}
