/*
events.go - Websocket change feed

PURPOSE:
  Pushes engine change events to the frontend so open views can refetch
  the collections an operation touched. Each message is one
  generic.ChangeEvent as JSON. Events carry a sequence number; a client
  that sees a gap missed events and should refetch everything.

  GET /api/events  (upgrade to websocket)
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warp/pantry-engine/generic"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware already restricts browsers; the feed is read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events upgrades the request and streams change events until the client
// goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Events] Failed to upgrade connection: %v", err)
		return
	}

	events, cancel := h.Engine.Subscribe(64)
	done := make(chan struct{})

	go readPump(conn, done)
	writePump(conn, events, done)

	cancel()
	conn.Close()
}

// readPump discards client messages and notices when the client leaves.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Events] WebSocket error: %v", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, events <-chan generic.ChangeEvent, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[Events] Error encoding event: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
