// Package ws is a reference Presenter dashboard: a small HTTP+WebSocket
// server that fans out the Update Channel's event stream to browser
// clients, standing in for a real Presenter UI. Uses gorilla/mux for
// request routing and gorilla/websocket for the upgrade/broadcast/
// cleanup-on-disconnect loop, serving a single append-only event feed
// rather than a polled device graph.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// message is the wire shape pushed to every connected client.
type message struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
}

// Dashboard broadcasts every Event it receives to all connected
// WebSocket clients. It implements ports.EventSink so it can sit
// directly on the Presenter's event-decoding loop.
type Dashboard struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewDashboard creates an empty Dashboard.
func NewDashboard() *Dashboard {
	return &Dashboard{clients: make(map[*websocket.Conn]struct{})}
}

// Send implements ports.EventSink, broadcasting ev to every client.
func (d *Dashboard) Send(ev domain.Event) error {
	data, err := json.Marshal(message{Type: "event", Event: ev})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(d.clients, conn)
		}
	}
	return nil
}

// Router builds the dashboard's HTTP routes.
func (d *Dashboard) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", d.handleWebSocket)
	r.HandleFunc("/healthz", d.handleHealthz).Methods(http.MethodGet)
	return r
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("presenter/ws: upgrade: %v", err)
		return
	}

	d.mu.Lock()
	d.clients[conn] = struct{}{}
	d.mu.Unlock()

	go func() {
		defer conn.Close()
		defer func() {
			d.mu.Lock()
			delete(d.clients, conn)
			d.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (d *Dashboard) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ClientCount reports the number of currently connected clients, for
// tests and diagnostics.
func (d *Dashboard) ClientCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}
