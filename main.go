package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

func main() {
	configFlag := flag.String("config", "", "path to config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging to slacker.log")
	flag.Parse()

	logFile, err := setupLogging("slacker.log", *debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	cfg, err := LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read token from %s: %v\n", cfg.TokenFile, err)
		fmt.Fprintf(os.Stderr, "put a Slack API token in that file and try again\n")
		os.Exit(1)
	}

	client := NewSlackClient(token, cfg.APIBase)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	self, err := client.AuthTest(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authentication failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "check the token in %s\n", cfg.TokenFile)
		os.Exit(1)
	}
	log.Info().Str("user", self.User).Str("team", self.Team).Msg("authenticated")

	// Query the terminal background before the TUI takes over stdio.
	adaptPalette()

	m := newModel(cfg, client, self)

	log.Info().Msg("starting TUI")
	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
