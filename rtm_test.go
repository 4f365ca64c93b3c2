package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// startRTMStub runs one server that serves both the rtm.connect handshake
// and the websocket it points at. push receives the connection to script
// server-side pushes.
func startRTMStub(t *testing.T, push func(conn *websocket.Conn)) *SlackClient {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	mux.HandleFunc("/rtm.connect", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"ok":true,"url":"%s"}`, wsURL)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		push(conn)
	})
	return NewSlackClient("xoxp-test", srv.URL+"/")
}

func TestConnectRTM(t *testing.T) {
	t.Run("pumps events then closes", func(t *testing.T) {
		c := startRTMStub(t, func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","channel":"C1","ts":"1.0"}`))
			conn.Close()
		})

		events, err := c.ConnectRTM(context.Background())
		if err != nil {
			t.Fatal(err)
		}

		first := <-events
		if !strings.Contains(string(first), "hello") {
			t.Errorf("first event = %s", first)
		}
		second := <-events
		if !strings.Contains(string(second), "message") {
			t.Errorf("second event = %s", second)
		}

		select {
		case _, ok := <-events:
			if ok {
				t.Error("expected channel close after server disconnect")
			}
		case <-time.After(2 * time.Second):
			t.Error("event channel not closed")
		}
	})

	t.Run("context cancel closes channel", func(t *testing.T) {
		c := startRTMStub(t, func(conn *websocket.Conn) {
			// Hold the connection open without sending anything.
			time.Sleep(5 * time.Second)
			conn.Close()
		})

		ctx, cancel := context.WithCancel(context.Background())
		events, err := c.ConnectRTM(ctx)
		if err != nil {
			t.Fatal(err)
		}
		cancel()

		select {
		case _, ok := <-events:
			if ok {
				t.Error("expected close, got event")
			}
		case <-time.After(2 * time.Second):
			t.Error("event channel not closed after cancel")
		}
	})

	t.Run("handshake error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/rtm.connect", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok":false,"error":"invalid_auth"}`)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		c := NewSlackClient("xoxp-test", srv.URL+"/")
		if _, err := c.ConnectRTM(context.Background()); err == nil {
			t.Error("expected handshake error")
		}
	})
}
