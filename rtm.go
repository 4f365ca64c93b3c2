package main

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const rtmReconnectDelay = 3 * time.Second

// ConnectRTM performs the rtm.connect handshake and dials the returned
// websocket URL. Raw event payloads are pumped into the returned channel
// until the connection drops or ctx is cancelled; the channel is closed on
// either. Reconnecting is the caller's job (see rtmClosedMsg handling).
func (c *SlackClient) ConnectRTM(ctx context.Context) (<-chan json.RawMessage, error) {
	var resp struct {
		OK  bool   `json:"ok"`
		Err string `json:"error"`
		URL string `json:"url"`
	}
	if err := c.get(ctx, "rtm.connect", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &apiError{"rtm.connect", resp.Err}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, resp.URL, nil)
	if err != nil {
		return nil, err
	}

	events := make(chan json.RawMessage)
	go func() {
		defer close(events)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Msg("rtm: read failed, connection closed")
				return
			}
			select {
			case events <- json.RawMessage(data):
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// Bubbletea messages for the push stream.
type rtmConnectedMsg struct {
	events <-chan json.RawMessage
	cancel context.CancelFunc
}
type rtmEventMsg json.RawMessage
type rtmClosedMsg struct{}
type rtmReconnectMsg struct{}

// connectRTMCmd opens the push connection inside a tea.Cmd so the handshake
// doesn't block Init/Update.
func connectRTMCmd(client *SlackClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		events, err := client.ConnectRTM(ctx)
		if err != nil {
			cancel()
			return slackErrMsg{err}
		}
		log.Info().Msg("rtm: connected")
		return rtmConnectedMsg{events: events, cancel: cancel}
	}
}

// waitForRTMEvent blocks on the event channel and returns the next raw event.
func waitForRTMEvent(events <-chan json.RawMessage) tea.Cmd {
	return func() tea.Msg {
		raw, ok := <-events
		if !ok {
			return rtmClosedMsg{}
		}
		return rtmEventMsg(raw)
	}
}

// rtmReconnectDelayCmd waits before attempting a reconnect, so a flapping
// socket doesn't spin.
func rtmReconnectDelayCmd() tea.Cmd {
	return tea.Tick(rtmReconnectDelay, func(time.Time) tea.Msg {
		return rtmReconnectMsg{}
	})
}
