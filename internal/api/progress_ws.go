package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	SolveID string `json:"solveId"`
}

// SolveWSHandler handles /v1/solves/ws: a lightweight subscribe protocol for
// streaming solve progress over one WebSocket connection. The client sends
// connection_init, then any number of subscribe messages carrying a solveId;
// events arrive as next messages tagged with the subscription id.
func (s *Server) SolveWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		solveID string
		ch      chan SolveEvent
		done    chan struct{}
	}
	subs := map[string]sub{}
	defer func() {
		for _, sb := range subs {
			close(sb.done)
			s.Broker.Unsubscribe(sb.solveID, sb.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var p wsSubscribePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.SolveID == "" || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = write(wsMessage{Type: "error", ID: msg.ID})
				continue
			}
			sb := sub{solveID: p.SolveID, ch: s.Broker.Subscribe(p.SolveID), done: make(chan struct{})}
			subs[msg.ID] = sb
			go func(id string, sb sub) {
				for {
					select {
					case <-sb.done:
						return
					case evt, ok := <-sb.ch:
						if !ok {
							return
						}
						payload, _ := json.Marshal(evt)
						_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
					}
				}
			}(msg.ID, sb)
		case "complete":
			if sb, ok := subs[msg.ID]; ok {
				close(sb.done)
				s.Broker.Unsubscribe(sb.solveID, sb.ch)
				delete(subs, msg.ID)
			}
		}
	}
}
