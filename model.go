package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"
)

type model struct {
	cfg     Config
	client  *SlackClient
	store   *Store
	self    Identity
	limiter *rate.Limiter
	rng     *rand.Rand

	// TUI dimensions
	width  int
	height int

	// Sidebar: projected entries and the selected conversation. Selection
	// follows the conversation id, not the row index, so reordering on new
	// activity never moves the selection to a different conversation.
	entries  []listEntry
	activeID string
	snap     Snapshot

	// Push stream
	rtmEvents <-chan json.RawMessage
	rtmCancel context.CancelFunc
	rtmUp     bool

	// Components
	viewport viewport.Model
	input    textarea.Model

	// Input tracking
	lastInputHeight int

	// Input history
	inputHistory []string
	historyIndex int // -1 = current input, 0..len-1 = history position
	historySaved string

	// Status
	statusMsg string
}

// slackErrMsg carries a transport or API failure into the update loop.
type slackErrMsg struct{ err error }

type messageSentMsg struct {
	msg Message
	err error
}

// sendMessageCmd posts text and returns the server's copy for local echo.
func sendMessageCmd(client *SlackClient, conversationID, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		msg, err := client.PostMessage(ctx, conversationID, text)
		return messageSentMsg{msg: msg, err: err}
	}
}

func newModel(cfg Config, client *SlackClient, self Identity) model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "> "
	ta.CharLimit = 4000
	ta.SetHeight(inputMinHeight)
	ta.MaxHeight = inputMaxHeight
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	vp := viewport.New(80, 20)

	return model{
		cfg:             cfg,
		client:          client,
		store:           NewStore(cfg.MaxMessages),
		self:            self,
		limiter:         rate.NewLimiter(rate.Limit(cfg.APIRatePerSec), cfg.APIRatePerSec),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		width:           80,
		height:          24,
		viewport:        vp,
		input:           ta,
		lastInputHeight: inputMinHeight,
		historyIndex:    -1,
		statusMsg:       "connecting...",
	}
}

func (m *model) Init() tea.Cmd {
	// Repaint projections after every store mutation; the observer runs
	// synchronously inside Update, so the view can never lag the store.
	m.store.Subscribe(m.refreshViews)

	return tea.Batch(
		textarea.Blink,
		fetchUsersCmd(m.client),
		fetchConversationsCmd(m.client),
		connectRTMCmd(m.client),
		refreshTickCmd(m.cfg.refreshInterval()),
		listTickCmd(m.cfg.listRefreshInterval()),
	)
}

// refreshViews re-derives everything the screen shows from a fresh snapshot.
func (m *model) refreshViews() {
	m.snap = m.store.Snapshot()
	m.entries = projectConversationList(m.snap)
	m.updateViewport()
}

// activeConversation returns the snapshot view of the selected conversation.
func (m *model) activeConversation() (ConversationView, bool) {
	for _, v := range m.snap.Conversations {
		if v.ID == m.activeID {
			return v, true
		}
	}
	return ConversationView{}, false
}

// activeEntryIdx returns the sidebar row of the selected conversation, or -1.
func (m *model) activeEntryIdx() int {
	for i, e := range m.entries {
		if e.ID == m.activeID {
			return i
		}
	}
	return -1
}

// selectConversation switches the active conversation: clears its unread
// state locally and remotely and forces a history refresh so the view is
// current even when the scheduler wouldn't have picked it yet.
func (m *model) selectConversation(id string) tea.Cmd {
	if id == "" || id == m.activeID {
		return nil
	}
	m.activeID = id
	m.store.MarkRead(id)
	cmds := []tea.Cmd{m.forceRefresh(id)}
	if ts := m.store.LatestTs(id); ts != "" {
		cmds = append(cmds, markReadCmd(m.client, id, ts))
	}
	return tea.Batch(cmds...)
}

// selectOffset moves the selection up or down the sidebar, wrapping around.
func (m *model) selectOffset(delta int) tea.Cmd {
	n := len(m.entries)
	if n == 0 {
		return nil
	}
	idx := m.activeEntryIdx()
	if idx < 0 {
		idx = 0
	} else {
		idx = ((idx+delta)%n + n) % n
	}
	return m.selectConversation(m.entries[idx].ID)
}

// defaultConversationID picks the initial selection after the first listing:
// the configured default channel by name, else the first sidebar entry.
func (m *model) defaultConversationID() string {
	for _, v := range m.snap.Conversations {
		if v.Kind == KindPublicChannel && v.IsMember && v.Name == m.cfg.DefaultChannel {
			return v.ID
		}
	}
	if len(m.entries) > 0 {
		return m.entries[0].ID
	}
	return ""
}
