package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// sidebarItemAt maps a Y coordinate to a sidebar entry index. Returns false
// for the section header and rows past the end of the list.
func (m *model) sidebarItemAt(y int) (int, bool) {
	idx := y - 1 // row 0 is the section header
	if idx >= 0 && idx < len(m.entries) {
		return idx, true
	}
	return 0, false
}

func (m *model) sidebarWidth() int {
	longest := 0
	for _, e := range m.entries {
		if n := lipgloss.Width(e.Title); n > longest {
			longest = n
		}
	}
	w := longest + sidebarPadding
	if w < minSidebarWidth {
		w = minSidebarWidth
	}
	return w
}

// renderTitleBar returns the rendered title bar for the active conversation.
func (m *model) renderTitleBar() string {
	title := ""
	if v, ok := m.activeConversation(); ok {
		title = conversationDisplayName(v, m.snap.Users)
	}
	return titleStyle.Render(title)
}

func (m *model) updateLayout() {
	contentWidth := m.width - m.sidebarWidth() - sidebarBorder
	if contentWidth < 10 {
		contentWidth = 10
	}

	// Set widths first so measured heights are accurate.
	m.viewport.Width = contentWidth
	m.input.SetWidth(contentWidth)

	titleHeight := lipgloss.Height(m.renderTitleBar())
	statusHeight := lipgloss.Height(m.viewStatusBar())
	inputHeight := lipgloss.Height(m.input.View())

	contentHeight := m.height - titleHeight - statusHeight - inputHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	m.viewport.Height = contentHeight
	m.updateViewport()
}

func (m *model) updateViewport() {
	v, ok := m.activeConversation()
	if !ok {
		m.viewport.SetContent("")
		return
	}
	if !v.Loaded && len(v.Messages) == 0 {
		m.viewport.SetContent(chatTimestampStyle.Render("  loading history..."))
		return
	}
	lines := projectMessageLines(v.Messages, m.snap.Users, m.snap.Names, m.viewport.Width)
	lines = lastLines(lines, m.viewport.Height)
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebar := m.viewSidebar()
	content := m.viewContent()
	statusBar := m.viewStatusBar()

	mainArea := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)

	return lipgloss.JoinVertical(lipgloss.Left, mainArea, statusBar)
}

func (m *model) viewSidebar() string {
	contentHeight := m.height - lipgloss.Height(m.viewStatusBar())
	sw := m.sidebarWidth()

	items := []string{sidebarSectionStyle.Render("CONVERSATIONS")}
	for _, e := range m.entries {
		name := e.Title
		if lipgloss.Width(name) > sw-2 {
			name = name[:sw-2]
		}
		switch {
		case e.ID == m.activeID:
			items = append(items, sidebarSelectedStyle.Render(name))
		case e.Unread:
			items = append(items, sidebarUnreadStyle.Render(name))
		default:
			items = append(items, sidebarItemStyle.Render(name))
		}
	}

	content := strings.Join(items, "\n")

	return sidebarStyle.Width(sw).Height(contentHeight).MaxHeight(contentHeight).Render(content)
}

func (m *model) viewContent() string {
	totalHeight := m.height - lipgloss.Height(m.viewStatusBar())

	inner := lipgloss.JoinVertical(lipgloss.Left,
		m.renderTitleBar(),
		m.viewport.View(),
		m.input.View(),
	)

	return lipgloss.NewStyle().Height(totalHeight).MaxHeight(totalHeight).Render(inner)
}

func (m *model) viewStatusBar() string {
	conn := statusDisconnectedStyle.Render("○ offline")
	if m.rtmUp {
		conn = statusConnectedStyle.Render("● live")
	}
	bar := conn
	if m.statusMsg != "" {
		bar += "  " + m.statusMsg
	}
	return statusBarStyle.Width(m.width).Render(bar)
}
