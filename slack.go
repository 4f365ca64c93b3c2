package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAPIBase = "https://slack.com/api/"

// ConversationKind classifies an addressable chat destination.
type ConversationKind int

const (
	KindPublicChannel ConversationKind = iota
	KindPrivateChannel
	KindMpim
	KindIM
)

func (k ConversationKind) String() string {
	switch k {
	case KindPublicChannel:
		return "channel"
	case KindPrivateChannel:
		return "private"
	case KindMpim:
		return "mpim"
	case KindIM:
		return "im"
	}
	return "unknown"
}

// ConversationInfo is one record of a conversations.list response.
type ConversationInfo struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	IsChannel          bool   `json:"is_channel"`
	IsGroup            bool   `json:"is_group"`
	IsIM               bool   `json:"is_im"`
	IsMpim             bool   `json:"is_mpim"`
	IsPrivate          bool   `json:"is_private"`
	IsMember           bool   `json:"is_member"`
	IsArchived         bool   `json:"is_archived"`
	IsUserDeleted      bool   `json:"is_user_deleted"`
	User               string `json:"user"` // IM counterpart user id
	UnreadCountDisplay int    `json:"unread_count_display"`
}

// Kind derives the conversation kind from the wire flags.
func (ci ConversationInfo) Kind() ConversationKind {
	switch {
	case ci.IsIM:
		return KindIM
	case ci.IsMpim:
		return KindMpim
	case ci.IsPrivate || ci.IsGroup:
		return KindPrivateChannel
	default:
		return KindPublicChannel
	}
}

// Message is a single chat message. Ts is the Slack timestamp string
// ("1690000000.000123"); it is unique per conversation and doubles as the
// ordering and dedup key.
type Message struct {
	Ts       string `json:"ts"`
	Channel  string `json:"channel,omitempty"`
	User     string `json:"user,omitempty"`
	Username string `json:"username,omitempty"` // bot/system sender display name
	Text     string `json:"text"`
	Subtype  string `json:"subtype,omitempty"`
}

// Sender returns the user id when present, else the literal bot/system name.
func (m Message) Sender() string {
	if m.User != "" {
		return m.User
	}
	return m.Username
}

// Time converts the Slack ts string to a wall-clock time.
func (m Message) Time() time.Time {
	sec, frac, _ := strings.Cut(m.Ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var ns int64
	if frac != "" {
		if f, err := strconv.ParseFloat("0."+frac, 64); err == nil {
			ns = int64(f * 1e9)
		}
	}
	return time.Unix(s, ns)
}

// tsLess compares two Slack timestamp strings numerically. The empty string
// sorts before any real timestamp (sentinel for "no messages yet").
func tsLess(a, b string) bool {
	if a == b {
		return false
	}
	if a == "" {
		return true
	}
	if b == "" {
		return false
	}
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr != nil || berr != nil {
		return a < b
	}
	if af == bf {
		return a < b
	}
	return af < bf
}

// User is one entry of the user reference table.
type User struct {
	ID   string
	Name string
}

// Identity is the auth.test result for the session's token.
type Identity struct {
	UserID string
	User   string
	Team   string
}

// apiError is a non-ok response from the Slack web API.
type apiError struct {
	method string
	code   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.method, e.code)
}

// SlackClient talks to the Slack web API. It is handed to every component
// that needs remote access instead of living in a package-level singleton.
type SlackClient struct {
	token string
	base  string
	http  *http.Client
}

func NewSlackClient(token, base string) *SlackClient {
	if base == "" {
		base = defaultAPIBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &SlackClient{
		token: token,
		base:  base,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *SlackClient) call(ctx context.Context, httpMethod, method string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.token)

	var req *http.Request
	var err error
	if httpMethod == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.base+method+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.base+method, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	return nil
}

func (c *SlackClient) get(ctx context.Context, method string, params url.Values, out any) error {
	return c.call(ctx, http.MethodGet, method, params, out)
}

func (c *SlackClient) post(ctx context.Context, method string, params url.Values, out any) error {
	return c.call(ctx, http.MethodPost, method, params, out)
}

// AuthTest verifies the token and returns the caller's identity.
func (c *SlackClient) AuthTest(ctx context.Context) (Identity, error) {
	var resp struct {
		OK     bool   `json:"ok"`
		Err    string `json:"error"`
		UserID string `json:"user_id"`
		User   string `json:"user"`
		Team   string `json:"team"`
	}
	if err := c.get(ctx, "auth.test", nil, &resp); err != nil {
		return Identity{}, err
	}
	if !resp.OK {
		return Identity{}, &apiError{"auth.test", resp.Err}
	}
	return Identity{UserID: resp.UserID, User: resp.User, Team: resp.Team}, nil
}

// ListConversations fetches the full conversation listing, following
// pagination cursors. Archived conversations and IMs with deleted users are
// dropped before the listing is returned.
func (c *SlackClient) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	var all []ConversationInfo
	cursor := ""
	for {
		params := url.Values{
			"types":            {"public_channel,private_channel,mpim,im"},
			"exclude_archived": {"true"},
			"limit":            {"500"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp struct {
			OK       bool               `json:"ok"`
			Err      string             `json:"error"`
			Channels []ConversationInfo `json:"channels"`
			Meta     struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := c.get(ctx, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, &apiError{"conversations.list", resp.Err}
		}
		for _, ci := range resp.Channels {
			if ci.IsArchived || (ci.IsIM && ci.IsUserDeleted) {
				continue
			}
			all = append(all, ci)
		}
		cursor = resp.Meta.NextCursor
		if cursor == "" {
			return all, nil
		}
	}
}

// ListUsers fetches the user reference table. Deleted users are skipped.
func (c *SlackClient) ListUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		OK      bool   `json:"ok"`
		Err     string `json:"error"`
		Members []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Deleted bool   `json:"deleted"`
			Profile struct {
				DisplayName string `json:"display_name"`
			} `json:"profile"`
		} `json:"members"`
	}
	if err := c.get(ctx, "users.list", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &apiError{"users.list", resp.Err}
	}
	users := make([]User, 0, len(resp.Members))
	for _, m := range resp.Members {
		if m.Deleted {
			continue
		}
		name := m.Profile.DisplayName
		if name == "" {
			name = m.Name
		}
		users = append(users, User{ID: m.ID, Name: name})
	}
	return users, nil
}

// FetchHistory fetches the most recent messages of a conversation, returned
// ascending by ts. Messages missing a ts are skipped rather than failing the
// whole batch.
func (c *SlackClient) FetchHistory(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{
		"channel": {conversationID},
		"limit":   {strconv.Itoa(limit)},
	}
	var resp struct {
		OK       bool      `json:"ok"`
		Err      string    `json:"error"`
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, "conversations.history", params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &apiError{"conversations.history", resp.Err}
	}

	msgs := make([]Message, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if msg.Ts == "" {
			log.Warn().Str("channel", conversationID).Msg("history message without ts, skipping")
			continue
		}
		msg.Channel = conversationID
		msgs = append(msgs, msg)
	}
	// The API returns newest-first.
	sort.SliceStable(msgs, func(i, j int) bool { return tsLess(msgs[i].Ts, msgs[j].Ts) })
	return msgs, nil
}

// PostMessage sends a message and returns the server's copy of it, so the
// caller can echo it locally before the push stream delivers it back.
func (c *SlackClient) PostMessage(ctx context.Context, conversationID, text string) (Message, error) {
	params := url.Values{
		"channel": {conversationID},
		"text":    {text},
		"as_user": {"true"},
	}
	var resp struct {
		OK      bool    `json:"ok"`
		Err     string  `json:"error"`
		Ts      string  `json:"ts"`
		Message Message `json:"message"`
	}
	if err := c.post(ctx, "chat.postMessage", params, &resp); err != nil {
		return Message{}, err
	}
	if !resp.OK {
		return Message{}, &apiError{"chat.postMessage", resp.Err}
	}
	msg := resp.Message
	if msg.Ts == "" {
		msg.Ts = resp.Ts
	}
	msg.Channel = conversationID
	return msg, nil
}

// MarkRead moves the conversation's remote read cursor to ts.
func (c *SlackClient) MarkRead(ctx context.Context, conversationID, ts string) error {
	params := url.Values{
		"channel": {conversationID},
		"ts":      {ts},
	}
	var resp struct {
		OK  bool   `json:"ok"`
		Err string `json:"error"`
	}
	if err := c.post(ctx, "conversations.mark", params, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return &apiError{"conversations.mark", resp.Err}
	}
	return nil
}
