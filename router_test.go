package main

import (
	"testing"
)

func newRouterModel() *model {
	m := &model{
		client: NewSlackClient("xoxp-test", ""),
		store:  NewStore(10),
	}
	m.store.UpsertConversations(listingOf(chanInfo("C1", "general"), chanInfo("C2", "random")))
	m.activeID = "C1"
	return m
}

func TestParseRTMEvent(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ev, ok := parseRTMEvent([]byte(`{"type":"message","channel":"C1","ts":"1.0","user":"U1","text":"hi"}`))
		if !ok || ev.Type != "message" || ev.Text != "hi" {
			t.Errorf("parse failed: ok=%v ev=%+v", ok, ev)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, ok := parseRTMEvent([]byte(`{nope`)); ok {
			t.Error("malformed payload accepted")
		}
	})

	t.Run("typeless", func(t *testing.T) {
		if _, ok := parseRTMEvent([]byte(`{"ok":true}`)); ok {
			t.Error("typeless payload accepted")
		}
	})
}

func TestRouteMessage(t *testing.T) {
	t.Run("active conversation appends and marks read", func(t *testing.T) {
		m := newRouterModel()
		cmd := m.routeEvent(rtmEvent{Type: "message", Channel: "C1", Ts: "10.0", User: "U1", Text: "hi"})
		if cmd == nil {
			t.Error("expected a mark-read command for the active conversation")
		}
		v := m.store.Snapshot().Conversations[0]
		if len(v.Messages) != 1 || v.Unread {
			t.Errorf("unexpected state: %+v", v)
		}
	})

	t.Run("inactive conversation raises unread", func(t *testing.T) {
		m := newRouterModel()
		cmd := m.routeEvent(rtmEvent{Type: "message", Channel: "C2", Ts: "10.0", User: "U1", Text: "hi"})
		if cmd != nil {
			t.Error("inactive conversation should not mark read")
		}
		v := m.store.Snapshot().Conversations[1]
		if len(v.Messages) != 1 || !v.Unread {
			t.Errorf("unexpected state: %+v", v)
		}
	})

	t.Run("duplicate ts does not re-mark", func(t *testing.T) {
		m := newRouterModel()
		m.routeEvent(rtmEvent{Type: "message", Channel: "C1", Ts: "10.0", Text: "hi"})
		if cmd := m.routeEvent(rtmEvent{Type: "message", Channel: "C1", Ts: "10.0", Text: "hi"}); cmd != nil {
			t.Error("duplicate delivery produced another mark-read command")
		}
	})

	t.Run("edit and delete subtypes skipped", func(t *testing.T) {
		m := newRouterModel()
		for _, sub := range []string{"message_changed", "message_deleted"} {
			m.routeEvent(rtmEvent{Type: "message", Subtype: sub, Channel: "C1", Ts: "10.0"})
		}
		if n := len(m.store.Snapshot().Conversations[0].Messages); n != 0 {
			t.Errorf("unsupported subtype appended %d messages", n)
		}
	})

	t.Run("missing ts skipped", func(t *testing.T) {
		m := newRouterModel()
		m.routeEvent(rtmEvent{Type: "message", Channel: "C1", Text: "no ts"})
		if n := len(m.store.Snapshot().Conversations[0].Messages); n != 0 {
			t.Errorf("ts-less message appended")
		}
	})
}

func TestRouteMarkedEvents(t *testing.T) {
	m := newRouterModel()
	m.store.MarkUnread("C2")

	for _, typ := range []string{"channel_marked", "group_marked", "im_marked", "mpim_marked"} {
		m.store.MarkUnread("C2")
		if cmd := m.routeEvent(rtmEvent{Type: typ, Channel: "C2"}); cmd != nil {
			t.Errorf("%s produced a command", typ)
		}
		if m.store.Snapshot().Conversations[1].Unread {
			t.Errorf("%s did not clear unread", typ)
		}
	}
}

func TestRouteUnknownType(t *testing.T) {
	m := newRouterModel()
	if cmd := m.routeEvent(rtmEvent{Type: "user_typing", Channel: "C1"}); cmd != nil {
		t.Error("unhandled event type produced a command")
	}
}
