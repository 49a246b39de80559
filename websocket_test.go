package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

func TestWebSocketStreamsUpdates(t *testing.T) {
	manager, _ := newTestManager(t, testStatus)
	if err := manager.Poll(context.Background(), false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := NewWebSocketListener(hclog.NewNullLogger())
	ws.Init(manager)
	srv := httptest.NewServer(ws.Start(ctx, "").Handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	read := func() jsonBoilerUpdate {
		t.Helper()
		var msg jsonBoilerUpdate
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	msg := read()
	if msg.Serial != "12345" || !msg.Available {
		t.Errorf("snapshot = %+v", msg)
	}
	if msg.Entities["miscdata_state_value"] != "POWER" {
		t.Errorf("state = %v, want POWER", msg.Entities["miscdata_state_value"])
	}
	if msg.Values["frontdata_1_value"] != "65.3" {
		t.Errorf("raw boiler temperature = %v", msg.Values["frontdata_1_value"])
	}

	if _, err := manager.SetValue(context.Background(), keyPelletEnergy, 4.5); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	msg = read()
	if msg.Values[keyPelletEnergy] != 4.5 {
		t.Errorf("pellet energy = %v, want 4.5", msg.Values[keyPelletEnergy])
	}
}
