package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/snapcam/internal/debug"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleStatusSocket handles GET /status/ws: the status stream over a
// websocket, one JSON event per text message. Client messages are ignored.
func (h *Handlers) HandleStatusSocket(w http.ResponseWriter, r *http.Request) {
	// Subscribe first so nothing broadcast after the handshake is missed.
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		debug.Verbose("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(socketPingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}

		case <-gone:
			return
		}
	}
}
