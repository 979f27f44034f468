// Package main runs a demo WebSocket client for solve progress events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Enqueue a small async solve
	body := []byte(`{
		"locations": [{"lat":52.52,"lng":13.405},{"lat":52.53,"lng":13.41},{"lat":52.50,"lng":13.39},{"lat":52.51,"lng":13.44}],
		"demands": [30,40,20],
		"vehicle_capacity": 100,
		"num_vehicles": 2,
		"mode": "driving"
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solves", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var job struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		log.Fatal(err)
	}
	if job.ID == "" {
		log.Fatal("no solve id returned")
	}
	log.Printf("Solve ID: %s", job.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solves/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"solveId": job.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			log.Printf("recv type=%s id=%s payload=%s", msg.Type, msg.ID, string(msg.Payload))
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("timeout waiting for events")
	}
}
