package main

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

type jsonBoilerUpdate struct {
	Serial    string         `json:"serial"`
	Available bool           `json:"available"`
	LastSeen  int64          `json:"lastSeen"`
	Values    map[string]any `json:"values"`
	Entities  map[string]any `json:"entities"`
}

// WebSocket streams the boiler state to connected clients. A client may send
// the text message "refresh" to ask for an early poll.
type WebSocket struct {
	manager  *BoilerManager
	upgrader websocket.Upgrader
	log      hclog.Logger
	done     <-chan struct{}
}

func NewWebSocketListener(log hclog.Logger) *WebSocket {
	return &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

func (ws *WebSocket) Init(manager *BoilerManager) {
	ws.manager = manager
}

// Start binds open connections to ctx and returns the server to run.
func (ws *WebSocket) Start(ctx context.Context, addr string) *http.Server {
	ws.done = ctx.Done()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.serve)
	return &http.Server{Addr: addr, Handler: mux}
}

func (ws *WebSocket) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Debug("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	changes := make(chan BoilerChange, 10)
	ws.manager.AddListener(changes)
	defer ws.manager.RemoveListener(changes)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == "refresh" {
				ws.manager.RequestRefresh()
			}
		}
	}()

	if err := ws.send(conn); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-ws.done:
			return
		case <-changes:
			if err := ws.send(conn); err != nil {
				ws.log.Debug("write failed", "error", err)
				return
			}
		}
	}
}

func (ws *WebSocket) send(conn *websocket.Conn) error {
	d := ws.manager.GetBoiler()
	if d == nil {
		return nil
	}

	return conn.WriteJSON(jsonBoilerUpdate{
		Serial:    d.serial,
		Available: d.Available(),
		LastSeen:  d.lastSeen.Unix(),
		Values:    d.values,
		Entities:  renderAll(d.values),
	})
}
