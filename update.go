package main

import (
	"encoding/json"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)
	case tea.MouseMsg:
		return m.handleMouse(msg)
	case conversationsFetchedMsg:
		return m.handleConversationsFetched(msg)
	case usersFetchedMsg:
		return m.handleUsersFetched(msg)
	case refreshTickMsg:
		return m.handleRefreshTick(msg)
	case listTickMsg:
		return m.handleListTick(msg)
	case historyFetchedMsg:
		return m.handleHistoryFetched(msg)
	case rtmConnectedMsg:
		return m.handleRTMConnected(msg)
	case rtmEventMsg:
		return m.handleRTMEvent(msg)
	case rtmClosedMsg:
		return m.handleRTMClosed(msg)
	case rtmReconnectMsg:
		return m.handleRTMReconnect(msg)
	case messageSentMsg:
		return m.handleMessageSent(msg)
	case markReadDoneMsg:
		return m.handleMarkReadDone(msg)
	case slackErrMsg:
		return m.handleSlackErr(msg)
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}
	return m.handleInputUpdate(msg)
}

func (m *model) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	log.Debug().Int("width", msg.Width).Int("height", msg.Height).Msg("window size")
	m.width = msg.Width
	m.height = msg.Height
	m.updateLayout()
	return m, tea.ClearScreen
}

func (m *model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.LineUp(3)
		return m, nil
	case tea.MouseButtonWheelDown:
		m.viewport.LineDown(3)
		return m, nil
	case tea.MouseButtonLeft:
		if msg.Action == tea.MouseActionPress && msg.X < m.sidebarWidth() {
			if idx, ok := m.sidebarItemAt(msg.Y); ok {
				return m, m.selectConversation(m.entries[idx].ID)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m *model) handleConversationsFetched(msg conversationsFetchedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		log.Warn().Err(msg.err).Msg("conversation listing failed")
		m.statusMsg = "listing failed: " + msg.err.Error()
		return m, nil
	}
	log.Debug().Int("count", len(msg.list)).Msg("conversation listing fetched")
	m.store.UpsertConversations(msg.list)
	if m.activeID == "" {
		return m, m.selectConversation(m.defaultConversationID())
	}
	return m, nil
}

func (m *model) handleUsersFetched(msg usersFetchedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		log.Warn().Err(msg.err).Msg("user listing failed")
		return m, nil
	}
	log.Debug().Int("count", len(msg.list)).Msg("user listing fetched")
	m.store.SetUsers(msg.list)
	return m, nil
}

func (m *model) handleRefreshTick(refreshTickMsg) (tea.Model, tea.Cmd) {
	cmds := m.scheduleRefresh()
	cmds = append(cmds, refreshTickCmd(m.cfg.refreshInterval()))
	return m, tea.Batch(cmds...)
}

func (m *model) handleListTick(listTickMsg) (tea.Model, tea.Cmd) {
	return m, tea.Batch(
		fetchConversationsCmd(m.client),
		fetchUsersCmd(m.client),
		listTickCmd(m.cfg.listRefreshInterval()),
	)
}

func (m *model) handleHistoryFetched(msg historyFetchedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.store.AbortHistoryLoad(msg.token)
		log.Warn().Str("channel", msg.token.ConversationID).Err(msg.err).Msg("history fetch failed")
		if msg.token.ConversationID == m.activeID {
			m.statusMsg = "history load failed: " + msg.err.Error()
		}
		return m, nil
	}
	err := m.store.CommitHistoryLoad(msg.token, msg.msgs)
	switch {
	case errors.Is(err, ErrStaleToken):
		log.Debug().Str("channel", msg.token.ConversationID).Msg("discarding superseded history result")
	case err != nil:
		log.Warn().Str("channel", msg.token.ConversationID).Err(err).Msg("history commit failed")
	}
	return m, nil
}

func (m *model) handleRTMConnected(msg rtmConnectedMsg) (tea.Model, tea.Cmd) {
	if m.rtmCancel != nil {
		m.rtmCancel()
	}
	m.rtmEvents = msg.events
	m.rtmCancel = msg.cancel
	m.rtmUp = true
	m.statusMsg = "connected"
	return m, waitForRTMEvent(m.rtmEvents)
}

func (m *model) handleRTMEvent(msg rtmEventMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if ev, ok := parseRTMEvent(json.RawMessage(msg)); ok {
		if cmd := m.routeEvent(ev); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if m.rtmEvents != nil {
		cmds = append(cmds, waitForRTMEvent(m.rtmEvents))
	}
	return m, tea.Batch(cmds...)
}

func (m *model) handleRTMClosed(rtmClosedMsg) (tea.Model, tea.Cmd) {
	log.Warn().Msg("rtm: connection lost, scheduling reconnect")
	m.rtmEvents = nil
	m.rtmUp = false
	m.statusMsg = "connection lost, reconnecting..."
	return m, rtmReconnectDelayCmd()
}

func (m *model) handleRTMReconnect(rtmReconnectMsg) (tea.Model, tea.Cmd) {
	log.Info().Msg("rtm: reconnecting")
	return m, connectRTMCmd(m.client)
}

func (m *model) handleMessageSent(msg messageSentMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		log.Warn().Err(msg.err).Msg("send failed")
		m.statusMsg = "send failed: " + msg.err.Error()
		return m, nil
	}
	// Local echo; the push echo of the same ts dedups to a no-op.
	m.store.AppendLiveMessage(msg.msg)
	return m, markReadCmd(m.client, msg.msg.Channel, msg.msg.Ts)
}

func (m *model) handleMarkReadDone(msg markReadDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		log.Warn().Str("channel", msg.channel).Err(msg.err).Msg("mark read failed")
	}
	return m, nil
}

func (m *model) handleSlackErr(msg slackErrMsg) (tea.Model, tea.Cmd) {
	log.Warn().Err(msg.err).Msg("api error")
	m.statusMsg = msg.err.Error()
	if !m.rtmUp {
		// The failed call may have been the push handshake; keep retrying.
		return m, rtmReconnectDelayCmd()
	}
	return m, nil
}

func (m *model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Input history navigation — only when cursor is at the
	// top (up) or bottom (down) line of the textarea.
	if msg.String() == "up" && m.input.Line() == 0 && len(m.inputHistory) > 0 {
		if m.historyIndex == -1 {
			m.historySaved = m.input.Value()
			m.historyIndex = len(m.inputHistory) - 1
		} else if m.historyIndex > 0 {
			m.historyIndex--
		}
		m.input.SetValue(m.inputHistory[m.historyIndex])
		m.syncInputHeight()
		return m, nil
	}
	if msg.String() == "down" && m.input.Line() == m.input.LineCount()-1 && m.historyIndex >= 0 {
		if m.historyIndex < len(m.inputHistory)-1 {
			m.historyIndex++
			m.input.SetValue(m.inputHistory[m.historyIndex])
		} else {
			m.historyIndex = -1
			m.input.SetValue(m.historySaved)
			m.historySaved = ""
		}
		m.syncInputHeight()
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		if m.rtmCancel != nil {
			m.rtmCancel()
		}
		return m, tea.Quit

	case "ctrl+up":
		return m, m.selectOffset(-1)

	case "ctrl+down":
		return m, m.selectOffset(1)

	case "pgup":
		m.viewport.LineUp(10)
		return m, nil

	case "pgdown":
		m.viewport.LineDown(10)
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.inputHistory = append(m.inputHistory, text)
		m.historyIndex = -1
		m.historySaved = ""
		m.input.Reset()
		m.input.SetHeight(inputMinHeight)
		m.lastInputHeight = inputMinHeight
		m.updateLayout()

		if m.activeID == "" {
			m.statusMsg = "no conversation selected"
			return m, nil
		}
		return m, sendMessageCmd(m.client, m.activeID, text)
	}

	return m.handleInputUpdate(msg)
}

func (m *model) handleInputUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Pre-grow textarea before newline insertion so the internal viewport
	// calculates its scroll offset with the correct height.
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if s := keyMsg.String(); s == "alt+enter" || s == "ctrl+j" {
			target := m.input.LineCount() + 1
			if target > inputMaxHeight {
				target = inputMaxHeight
			}
			if target != m.lastInputHeight {
				m.input.SetHeight(target)
				m.lastInputHeight = target
				m.updateLayout()
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	// Shrink textarea when lines are removed (e.g. backspace joining lines).
	m.syncInputHeight()

	return m, tea.Batch(cmds...)
}

func (m *model) syncInputHeight() {
	target := m.input.LineCount()
	if target < inputMinHeight {
		target = inputMinHeight
	}
	if target > inputMaxHeight {
		target = inputMaxHeight
	}
	if target != m.lastInputHeight {
		m.input.SetHeight(target)
		m.lastInputHeight = target
		m.updateLayout()
	}
}
