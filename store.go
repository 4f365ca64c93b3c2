package main

import (
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Typed failures callers are expected to handle as control flow.
var (
	ErrAlreadyLoading      = errors.New("history load already in flight")
	ErrStaleToken          = errors.New("stale history load token")
	ErrUnknownConversation = errors.New("unknown conversation")
)

// historyState tracks whether a conversation's backlog has been fetched.
type historyState int

const (
	historyUnknown historyState = iota // listed but never fetched
	historyLoading                     // fetch in flight
	historyLoaded                      // message sequence present (possibly empty)
)

// Live messages that arrive before their conversation shows up in a listing
// are parked here for a bounded time instead of being dropped on the floor.
const (
	maxOrphans = 256
	orphanTTL  = 30 * time.Second
)

type orphan struct {
	msg      Message
	buffered time.Time
}

type conversation struct {
	id            string
	kind          ConversationKind
	name          string
	isMember      bool
	counterpartID string
	serverUnread  int
	unread        bool
	listPos       int

	state     historyState
	prevState historyState
	loadToken string
	loadedAt  time.Time
	msgs      []Message
}

// HistoryLoadToken ties a commit or abort back to the BeginHistoryLoad call that
// started it. A token is invalidated as soon as a newer load begins.
type HistoryLoadToken struct {
	ConversationID string
	id             string
}

// Store owns the in-memory model of all conversations, their message
// histories and the user reference table. All mutators run on the bubbletea
// update loop, so there is exactly one logical writer; no locking is needed.
// Views that must repaint on changes register through Subscribe, which keeps
// update fan-out ordering deterministic.
type Store struct {
	convs       map[string]*conversation
	order       []string // listing order, append-only
	users       map[string]string
	orphans     []orphan
	maxMessages int
	observers   []func()
	now         func() time.Time
}

func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = 500
	}
	return &Store{
		convs:       make(map[string]*conversation),
		users:       make(map[string]string),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Subscribe registers fn to run after every mutation. Observers run in
// registration order.
func (s *Store) Subscribe(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *Store) notify() {
	for _, fn := range s.observers {
		fn()
	}
}

// SetUsers replaces the user reference table. Names are treated as an
// eventually-consistent cache; there is no invalidation.
func (s *Store) SetUsers(users []User) {
	s.users = make(map[string]string, len(users))
	for _, u := range users {
		s.users[u.ID] = u.Name
	}
	s.notify()
}

// UserName resolves a user id to a display name.
func (s *Store) UserName(id string) (string, bool) {
	name, ok := s.users[id]
	return name, ok
}

// UpsertConversations merges a fresh listing into the store. Unknown records
// are created in the unknown history state; known ones only have their
// mutable fields updated, leaving history state and messages alone.
// Conversations absent from the listing are deliberately left untouched.
func (s *Store) UpsertConversations(list []ConversationInfo) {
	for _, ci := range list {
		c, ok := s.convs[ci.ID]
		if !ok {
			c = &conversation{
				id:      ci.ID,
				listPos: len(s.order),
			}
			s.convs[ci.ID] = c
			s.order = append(s.order, ci.ID)
		}
		c.kind = ci.Kind()
		c.name = ci.Name
		c.isMember = ci.IsMember
		c.counterpartID = ci.User
		c.serverUnread = ci.UnreadCountDisplay
		if !ok {
			s.adoptOrphans(c)
		}
	}
	s.notify()
}

// BeginHistoryLoad transitions the conversation to loading and returns the
// token required to commit or abort the load. At most one load may be in
// flight per conversation.
func (s *Store) BeginHistoryLoad(conversationID string) (HistoryLoadToken, error) {
	c, ok := s.convs[conversationID]
	if !ok {
		return HistoryLoadToken{}, ErrUnknownConversation
	}
	if c.state == historyLoading {
		return HistoryLoadToken{}, ErrAlreadyLoading
	}
	c.prevState = c.state
	c.state = historyLoading
	c.loadToken = uuid.NewString()
	return HistoryLoadToken{ConversationID: conversationID, id: c.loadToken}, nil
}

// CommitHistoryLoad replaces the conversation's message sequence with msgs,
// sorted ascending by ts and deduplicated (last write wins). A token that
// has been superseded by a newer load is rejected with ErrStaleToken and the
// result is discarded.
func (s *Store) CommitHistoryLoad(tok HistoryLoadToken, msgs []Message) error {
	c, ok := s.convs[tok.ConversationID]
	if !ok {
		return ErrUnknownConversation
	}
	if c.loadToken != tok.id {
		return ErrStaleToken
	}
	c.msgs = sortMessages(msgs)
	c.state = historyLoaded
	c.prevState = historyLoaded
	c.loadToken = ""
	c.loadedAt = s.now()
	s.adoptOrphans(c)
	s.trim(c)
	s.notify()
	return nil
}

// AbortHistoryLoad reverts a failed load to its pre-attempt state so the
// conversation doesn't stay stuck in loading. Aborting with a superseded
// token is a no-op.
func (s *Store) AbortHistoryLoad(tok HistoryLoadToken) {
	c, ok := s.convs[tok.ConversationID]
	if !ok || c.loadToken != tok.id {
		return
	}
	c.state = c.prevState
	c.loadToken = ""
}

// AppendLiveMessage inserts one pushed message preserving ts order. Inserting
// a ts that is already present is a no-op, which is what reconciles the
// history-fetch and push-stream races. Messages for conversations the store
// has never seen are buffered for a bounded time. Reports whether the
// message was inserted.
func (s *Store) AppendLiveMessage(msg Message) bool {
	if msg.Ts == "" || msg.Channel == "" {
		return false
	}
	c, ok := s.convs[msg.Channel]
	if !ok {
		s.bufferOrphan(msg)
		return false
	}
	if !insertMessage(&c.msgs, msg) {
		return false
	}
	s.trim(c)
	s.notify()
	return true
}

// MarkRead clears the local unread state. It never calls the remote service.
func (s *Store) MarkRead(conversationID string) {
	if c, ok := s.convs[conversationID]; ok {
		c.unread = false
		c.serverUnread = 0
		s.notify()
	}
}

// MarkUnread sets the local unread flag. It never calls the remote service.
func (s *Store) MarkUnread(conversationID string) {
	if c, ok := s.convs[conversationID]; ok {
		c.unread = true
		s.notify()
	}
}

// LatestTs returns the ts of the newest message, or "" when none.
func (s *Store) LatestTs(conversationID string) string {
	c, ok := s.convs[conversationID]
	if !ok || len(c.msgs) == 0 {
		return ""
	}
	return c.msgs[len(c.msgs)-1].Ts
}

// ExpireOrphans drops buffered messages whose conversation never appeared.
func (s *Store) ExpireOrphans() {
	if len(s.orphans) == 0 {
		return
	}
	cutoff := s.now().Add(-orphanTTL)
	kept := s.orphans[:0]
	for _, o := range s.orphans {
		if o.buffered.Before(cutoff) {
			log.Warn().Str("channel", o.msg.Channel).Str("ts", o.msg.Ts).
				Msg("dropping buffered message for conversation that never appeared")
			continue
		}
		kept = append(kept, o)
	}
	s.orphans = kept
}

func (s *Store) bufferOrphan(msg Message) {
	if len(s.orphans) >= maxOrphans {
		log.Warn().Str("channel", s.orphans[0].msg.Channel).
			Msg("orphan buffer full, dropping oldest buffered message")
		s.orphans = s.orphans[1:]
	}
	s.orphans = append(s.orphans, orphan{msg: msg, buffered: s.now()})
}

func (s *Store) adoptOrphans(c *conversation) {
	kept := s.orphans[:0]
	for _, o := range s.orphans {
		if o.msg.Channel == c.id {
			insertMessage(&c.msgs, o.msg)
			continue
		}
		kept = append(kept, o)
	}
	s.orphans = kept
}

func (s *Store) trim(c *conversation) {
	if len(c.msgs) > s.maxMessages {
		c.msgs = c.msgs[len(c.msgs)-s.maxMessages:]
	}
}

// insertMessage places msg into msgs preserving ascending ts order. Returns
// false without modifying the slice when the ts is already present.
func insertMessage(msgs *[]Message, msg Message) bool {
	i := sort.Search(len(*msgs), func(i int) bool {
		return !tsLess((*msgs)[i].Ts, msg.Ts)
	})
	if i < len(*msgs) && (*msgs)[i].Ts == msg.Ts {
		return false
	}
	*msgs = slices.Insert(*msgs, i, msg)
	return true
}

// sortMessages returns msgs sorted ascending by ts with duplicate ts entries
// collapsed, keeping the last occurrence.
func sortMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return tsLess(out[i].Ts, out[j].Ts) })
	deduped := out[:0]
	for _, msg := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Ts == msg.Ts {
			deduped[n-1] = msg // last write wins
			continue
		}
		deduped = append(deduped, msg)
	}
	return deduped
}

// ConversationView is the render-ready projection of one conversation.
type ConversationView struct {
	ID            string
	Kind          ConversationKind
	Name          string
	IsMember      bool
	CounterpartID string
	Unread        bool
	UnreadCount   int
	Loaded        bool
	LatestTs      string
	ListPos       int
	Messages      []Message
}

// Snapshot is an immutable copy of the store for the view projector. Nothing
// the projector does to it can reach back into the store.
type Snapshot struct {
	Conversations []ConversationView // listing order
	Users         map[string]string  // user id -> display name
	Names         map[string]string  // conversation id -> name
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Conversations: make([]ConversationView, 0, len(s.order)),
		Users:         make(map[string]string, len(s.users)),
		Names:         make(map[string]string, len(s.convs)),
	}
	for id, name := range s.users {
		snap.Users[id] = name
	}
	for _, id := range s.order {
		c := s.convs[id]
		latest := ""
		if len(c.msgs) > 0 {
			latest = c.msgs[len(c.msgs)-1].Ts
		}
		snap.Conversations = append(snap.Conversations, ConversationView{
			ID:            c.id,
			Kind:          c.kind,
			Name:          c.name,
			IsMember:      c.isMember,
			CounterpartID: c.counterpartID,
			Unread:        c.unread,
			UnreadCount:   c.serverUnread,
			Loaded:        c.state == historyLoaded,
			LatestTs:      latest,
			ListPos:       c.listPos,
			Messages:      slices.Clone(c.msgs),
		})
		snap.Names[c.id] = c.name
	}
	return snap
}
