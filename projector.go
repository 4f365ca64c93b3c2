package main

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

// Everything in this file is a pure derivation from a store Snapshot. No
// projection result is cached between renders; the whole view is recomputed
// from the snapshot every time, which keeps render state impossible to
// desynchronize from the store.

// listEntry is one sidebar row.
type listEntry struct {
	ID     string
	Kind   ConversationKind
	Title  string
	Unread bool
}

// projectConversationList derives the sidebar: conversations the user is a
// member of (plus all direct messages), newest activity first. Conversations
// without any message yet sort after all that have one, and ties keep the
// listing order, so the list is stable while nothing changes.
func projectConversationList(snap Snapshot) []listEntry {
	var views []ConversationView
	for _, v := range snap.Conversations {
		if !v.IsMember && v.Kind != KindIM {
			continue
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.LatestTs != b.LatestTs {
			return tsLess(b.LatestTs, a.LatestTs)
		}
		return a.ListPos < b.ListPos
	})

	entries := make([]listEntry, 0, len(views))
	for _, v := range views {
		title := conversationDisplayName(v, snap.Users)
		if v.UnreadCount > 0 {
			title = fmt.Sprintf("(%d) %s", v.UnreadCount, title)
		}
		if v.Unread {
			title = "* " + title
		}
		entries = append(entries, listEntry{
			ID:     v.ID,
			Kind:   v.Kind,
			Title:  title,
			Unread: v.Unread || v.UnreadCount > 0,
		})
	}
	return entries
}

// conversationDisplayName derives the human name for a conversation. Group
// direct messages arrive named like "mpdm-alice--bob--carol-1"; the wrapper
// is stripped to "alice, bob, carol".
func conversationDisplayName(v ConversationView, users map[string]string) string {
	switch v.Kind {
	case KindIM:
		if name, ok := users[v.CounterpartID]; ok && name != "" {
			return "@" + name
		}
		return "@" + v.CounterpartID
	case KindMpim:
		name := strings.TrimPrefix(v.Name, "mpdm-")
		name = strings.TrimSuffix(name, "-1")
		return strings.ReplaceAll(name, "--", ", ")
	case KindPrivateChannel:
		return "~" + v.Name
	default:
		return "#" + v.Name
	}
}

// Raw mention syntax: <@U123>, <#C123|channel-name>, optional label either way.
var mentionRe = regexp.MustCompile(`<([@#])([A-Z0-9]+)(?:\|([^>]*))?>`)

// substituteMentions rewrites raw user and channel mentions into readable
// form. Resolution falls back to the embedded label, then to the raw id, so
// an unresolvable mention still renders as something identifiable.
func substituteMentions(text string, users, names map[string]string) string {
	return mentionRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := mentionRe.FindStringSubmatch(match)
		sigil, id, label := sub[1], sub[2], sub[3]
		var table map[string]string
		if sigil == "@" {
			table = users
		} else {
			table = names
		}
		if name, ok := table[id]; ok && name != "" {
			return sigil + name
		}
		if label != "" {
			return sigil + label
		}
		return sigil + id
	})
}

// projectMessageLines renders a message sequence into display lines of at
// most width cells. Mentions are substituted before wrapping, so a wrapped
// line never breaks inside one. Each message is one block: a styled
// timestamp+sender prefix on the first line, continuation lines padded to
// the prefix width, and a blank separator after the block.
func projectMessageLines(msgs []Message, users, names map[string]string, width int) []string {
	var lines []string
	for _, msg := range msgs {
		sender := msg.Sender()
		if name, ok := users[sender]; ok && name != "" {
			sender = name
		}
		ts := chatTimestampStyle.Render(msg.Time().Format("15:04"))
		prefix := fmt.Sprintf("%s %s: ", ts, chatAuthorStyle.Render(sender))
		prefixW := lipgloss.Width(prefix)
		pad := strings.Repeat(" ", prefixW)
		wrapWidth := width - prefixW
		if wrapWidth < 1 {
			wrapWidth = 1
		}

		text := substituteMentions(msg.Text, users, names)
		// Word-wrap at word boundaries, then hard-wrap any remaining
		// overflows (long unbroken words like URLs).
		var contentLines []string
		for _, raw := range strings.Split(text, "\n") {
			wrapped := wordwrap.String(raw, wrapWidth)
			for _, wl := range strings.Split(wrapped, "\n") {
				if lipgloss.Width(wl) > wrapWidth {
					contentLines = append(contentLines, strings.Split(wrap.String(wl, wrapWidth), "\n")...)
				} else {
					contentLines = append(contentLines, wl)
				}
			}
		}
		if len(contentLines) == 0 {
			contentLines = []string{""}
		}
		lines = append(lines, prefix+contentLines[0])
		for _, cl := range contentLines[1:] {
			lines = append(lines, pad+cl)
		}
		lines = append(lines, "")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// lastLines keeps the newest n display lines, the viewport's worth.
func lastLines(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
