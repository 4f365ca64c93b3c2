package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Each tick refreshes at most a batch of conversations, and fetches within a
// batch are staggered so a tick never produces a request storm.
const refreshStagger = 10 * time.Millisecond

type refreshTickMsg time.Time
type listTickMsg time.Time

type conversationsFetchedMsg struct {
	list []ConversationInfo
	err  error
}

type usersFetchedMsg struct {
	list []User
	err  error
}

type historyFetchedMsg struct {
	token HistoryLoadToken
	msgs  []Message
	err   error
}

func refreshTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func listTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return listTickMsg(t) })
}

// refreshCandidates selects up to limit conversations whose history is still
// unknown or has been loaded longer ago than ttl. Selection order is
// shuffled so no conversation is starved when more than limit are eligible.
// Only conversations the user is a member of (and all direct messages) are
// considered; loading ones are skipped here and guarded again by
// BeginHistoryLoad.
func (s *Store) refreshCandidates(ttl time.Duration, limit int, rng *rand.Rand) []string {
	now := s.now()
	var eligible []string
	for _, id := range s.order {
		c := s.convs[id]
		if !c.isMember && c.kind != KindIM {
			continue
		}
		switch c.state {
		case historyUnknown:
			eligible = append(eligible, id)
		case historyLoaded:
			if now.Sub(c.loadedAt) >= ttl {
				eligible = append(eligible, id)
			}
		}
	}
	rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

// scheduleRefresh runs once per scheduler tick: it expires stale orphan
// buffers, begins a load for each selected conversation and returns the
// staggered fetch commands. A conversation already loading is skipped until
// the next tick.
func (m *model) scheduleRefresh() []tea.Cmd {
	m.store.ExpireOrphans()
	ids := m.store.refreshCandidates(m.cfg.historyTTL(), m.cfg.RefreshBatchLimit, m.rng)
	var cmds []tea.Cmd
	for i, id := range ids {
		tok, err := m.store.BeginHistoryLoad(id)
		if err != nil {
			if !errors.Is(err, ErrAlreadyLoading) {
				log.Warn().Str("channel", id).Err(err).Msg("scheduler: begin load failed")
			}
			continue
		}
		cmds = append(cmds, fetchHistoryCmd(m.client, m.limiter, tok, m.cfg.HistoryFetchLimit, time.Duration(i)*refreshStagger))
	}
	return cmds
}

// forceRefresh begins an immediate, unstaggered history load, used when the
// user switches to a conversation. Returns nil when a load is already in
// flight.
func (m *model) forceRefresh(conversationID string) tea.Cmd {
	tok, err := m.store.BeginHistoryLoad(conversationID)
	if err != nil {
		return nil
	}
	return fetchHistoryCmd(m.client, m.limiter, tok, m.cfg.HistoryFetchLimit, 0)
}

// fetchHistoryCmd fetches one conversation's history after an optional
// stagger delay, bounded by the shared API rate limiter.
func fetchHistoryCmd(client *SlackClient, limiter *rate.Limiter, tok HistoryLoadToken, limit int, stagger time.Duration) tea.Cmd {
	return func() tea.Msg {
		if stagger > 0 {
			time.Sleep(stagger)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := limiter.Wait(ctx); err != nil {
			return historyFetchedMsg{token: tok, err: err}
		}
		msgs, err := client.FetchHistory(ctx, tok.ConversationID, limit)
		return historyFetchedMsg{token: tok, msgs: msgs, err: err}
	}
}

func fetchConversationsCmd(client *SlackClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		list, err := client.ListConversations(ctx)
		return conversationsFetchedMsg{list: list, err: err}
	}
}

func fetchUsersCmd(client *SlackClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		list, err := client.ListUsers(ctx)
		return usersFetchedMsg{list: list, err: err}
	}
}
