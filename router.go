package main

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

// rtmEvent is the decoded shape of a push event. Only the fields the router
// cares about; everything else in the payload is ignored.
type rtmEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Channel  string `json:"channel"`
	Ts       string `json:"ts"`
	User     string `json:"user"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// parseRTMEvent decodes a raw push payload. Malformed or typeless payloads
// report false and are skipped by the caller, never fatal.
func parseRTMEvent(raw []byte) (rtmEvent, bool) {
	var ev rtmEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Warn().Err(err).Msg("rtm: malformed event payload, skipping")
		return rtmEvent{}, false
	}
	if ev.Type == "" {
		return rtmEvent{}, false
	}
	return ev, true
}

// routeEvent classifies one push event and applies it to the store. A plain
// message for the active conversation is appended and immediately marked
// read remotely (fire and forget); for any other conversation the unread
// flag is raised instead. Remote mark events clear the local flag so read
// state converges when another client catches up first.
func (m *model) routeEvent(ev rtmEvent) tea.Cmd {
	switch ev.Type {
	case "message":
		return m.routeMessage(ev)
	case "channel_marked", "group_marked", "im_marked", "mpim_marked":
		m.store.MarkRead(ev.Channel)
		return nil
	default:
		return nil
	}
}

func (m *model) routeMessage(ev rtmEvent) tea.Cmd {
	// Edits and deletions carry the changed message in a nested field and a
	// ts that names the edit, not the message. Not supported; skip.
	if ev.Subtype == "message_changed" || ev.Subtype == "message_deleted" {
		log.Debug().Str("subtype", ev.Subtype).Msg("rtm: unsupported message subtype, skipping")
		return nil
	}
	if ev.Ts == "" || ev.Channel == "" {
		log.Warn().Str("type", ev.Type).Msg("rtm: message event missing ts or channel, skipping")
		return nil
	}

	msg := Message{
		Ts:       ev.Ts,
		Channel:  ev.Channel,
		User:     ev.User,
		Username: ev.Username,
		Text:     ev.Text,
		Subtype:  ev.Subtype,
	}

	inserted := m.store.AppendLiveMessage(msg)
	if ev.Channel == m.activeID {
		if inserted {
			return markReadCmd(m.client, ev.Channel, ev.Ts)
		}
		return nil
	}
	m.store.MarkUnread(ev.Channel)
	return nil
}

type markReadDoneMsg struct {
	channel string
	err     error
}

// markReadCmd moves the remote read cursor. Failures are logged and
// otherwise ignored; the next natural mark attempt catches up.
func markReadCmd(client *SlackClient, channel, ts string) tea.Cmd {
	if ts == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := client.MarkRead(ctx, channel, ts)
		return markReadDoneMsg{channel: channel, err: err}
	}
}
