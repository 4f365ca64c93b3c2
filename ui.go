package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("#7B68EE")
	colorSecondary = lipgloss.Color("#5B5682")
	colorMuted     = lipgloss.Color("#636363")
	colorHighlight = lipgloss.Color("#E0DAFF")
	colorStatusBg  = lipgloss.Color("#24283B")
	colorWhite     = lipgloss.Color("#C0CAF5")
	colorGreen     = lipgloss.Color("#9ECE6A")
	colorRed       = lipgloss.Color("#F7768E")
)

// Layout constants
const (
	minSidebarWidth = 16
	sidebarPadding  = 4
	sidebarBorder   = 1
	inputMinHeight  = 1
	inputMaxHeight  = 6
)

// Styles
var (
	sidebarStyle = lipgloss.NewStyle().
			BorderRight(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(colorSecondary)

	sidebarSectionStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Bold(true).
				Padding(0, 1)

	sidebarItemStyle = lipgloss.NewStyle().
				Foreground(colorWhite).
				Padding(0, 1)

	sidebarSelectedStyle = lipgloss.NewStyle().
				Foreground(colorHighlight).
				Background(colorSecondary).
				Bold(true).
				Padding(0, 1)

	sidebarUnreadStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Padding(0, 1)

	chatAuthorStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	chatTimestampStyle = lipgloss.NewStyle().
				Foreground(colorMuted)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorStatusBg).
			Padding(0, 1)

	statusConnectedStyle = lipgloss.NewStyle().
				Foreground(colorGreen)

	statusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colorRed)
)

// adaptPalette swaps in a light-friendly palette when the terminal has a
// light background. Must run before the TUI starts; termenv queries the
// terminal over stdio.
func adaptPalette() {
	if termenv.HasDarkBackground() {
		return
	}
	colorMuted = lipgloss.Color("#8A8A8A")
	colorHighlight = lipgloss.Color("#3B2D8E")
	colorWhite = lipgloss.Color("#1A1B26")
	colorStatusBg = lipgloss.Color("#D5D6DB")

	sidebarSectionStyle = sidebarSectionStyle.Foreground(colorMuted)
	sidebarItemStyle = sidebarItemStyle.Foreground(colorWhite)
	sidebarSelectedStyle = sidebarSelectedStyle.Foreground(colorHighlight)
	chatTimestampStyle = chatTimestampStyle.Foreground(colorMuted)
	statusBarStyle = statusBarStyle.Foreground(colorWhite).Background(colorStatusBg)
}
