package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newStubAPI(t *testing.T, handlers map[string]http.HandlerFunc) *SlackClient {
	t.Helper()
	mux := http.NewServeMux()
	for method, h := range handlers {
		mux.HandleFunc("/"+method, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewSlackClient("xoxp-test", srv.URL+"/")
}

func TestAuthTest(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newStubAPI(t, map[string]http.HandlerFunc{
			"auth.test": func(w http.ResponseWriter, r *http.Request) {
				if tok := r.URL.Query().Get("token"); tok != "xoxp-test" {
					t.Errorf("token = %q", tok)
				}
				fmt.Fprint(w, `{"ok":true,"user_id":"U1","user":"alice","team":"acme"}`)
			},
		})
		id, err := c.AuthTest(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if id.UserID != "U1" || id.User != "alice" || id.Team != "acme" {
			t.Errorf("unexpected identity: %+v", id)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		c := newStubAPI(t, map[string]http.HandlerFunc{
			"auth.test": func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"ok":false,"error":"invalid_auth"}`)
			},
		})
		_, err := c.AuthTest(context.Background())
		if err == nil || err.Error() != "auth.test: invalid_auth" {
			t.Errorf("err = %v", err)
		}
	})
}

func TestListConversations(t *testing.T) {
	t.Run("follows cursors and filters", func(t *testing.T) {
		c := newStubAPI(t, map[string]http.HandlerFunc{
			"conversations.list": func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("cursor") == "" {
					fmt.Fprint(w, `{"ok":true,"channels":[
						{"id":"C1","name":"general","is_channel":true,"is_member":true},
						{"id":"C2","name":"old","is_channel":true,"is_archived":true}
					],"response_metadata":{"next_cursor":"page2"}}`)
					return
				}
				fmt.Fprint(w, `{"ok":true,"channels":[
					{"id":"D1","is_im":true,"user":"U1"},
					{"id":"D2","is_im":true,"user":"U2","is_user_deleted":true}
				],"response_metadata":{"next_cursor":""}}`)
			},
		})
		list, err := c.ListConversations(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].ID != "C1" || list[1].ID != "D1" {
			t.Errorf("unexpected listing: %+v", list)
		}
	})

	t.Run("api error", func(t *testing.T) {
		c := newStubAPI(t, map[string]http.HandlerFunc{
			"conversations.list": func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"ok":false,"error":"ratelimited"}`)
			},
		})
		if _, err := c.ListConversations(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestListUsers(t *testing.T) {
	c := newStubAPI(t, map[string]http.HandlerFunc{
		"users.list": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok":true,"members":[
				{"id":"U1","name":"alice.j","profile":{"display_name":"alice"}},
				{"id":"U2","name":"bob","profile":{"display_name":""}},
				{"id":"U3","name":"gone","deleted":true}
			]}`)
		},
	})
	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %+v", users)
	}
	if users[0].Name != "alice" {
		t.Errorf("display_name not preferred: %q", users[0].Name)
	}
	if users[1].Name != "bob" {
		t.Errorf("name fallback broken: %q", users[1].Name)
	}
}

func TestFetchHistory(t *testing.T) {
	c := newStubAPI(t, map[string]http.HandlerFunc{
		"conversations.history": func(w http.ResponseWriter, r *http.Request) {
			if ch := r.URL.Query().Get("channel"); ch != "C1" {
				t.Errorf("channel = %q", ch)
			}
			// Newest first, one message without ts.
			fmt.Fprint(w, `{"ok":true,"messages":[
				{"ts":"300.0","user":"U1","text":"newest"},
				{"text":"no ts"},
				{"ts":"100.0","user":"U1","text":"oldest"}
			]}`)
		},
	})
	msgs, err := c.FetchHistory(context.Background(), "C1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %+v", msgs)
	}
	if msgs[0].Ts != "100.0" || msgs[1].Ts != "300.0" {
		t.Errorf("not ascending: %+v", msgs)
	}
	if msgs[0].Channel != "C1" {
		t.Errorf("channel not stamped: %+v", msgs[0])
	}
}

func TestPostMessage(t *testing.T) {
	t.Run("returns server message", func(t *testing.T) {
		c := newStubAPI(t, map[string]http.HandlerFunc{
			"chat.postMessage": func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				r.ParseForm()
				if txt := r.PostForm.Get("text"); txt != "hello" {
					t.Errorf("text = %q", txt)
				}
				fmt.Fprint(w, `{"ok":true,"ts":"500.0","message":{"ts":"500.0","user":"U1","text":"hello"}}`)
			},
		})
		msg, err := c.PostMessage(context.Background(), "C1", "hello")
		if err != nil {
			t.Fatal(err)
		}
		if msg.Ts != "500.0" || msg.Channel != "C1" {
			t.Errorf("unexpected message: %+v", msg)
		}
	})

	t.Run("top-level ts fallback", func(t *testing.T) {
		c := newStubAPI(t, map[string]http.HandlerFunc{
			"chat.postMessage": func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"ok":true,"ts":"500.0"}`)
			},
		})
		msg, err := c.PostMessage(context.Background(), "C1", "hello")
		if err != nil {
			t.Fatal(err)
		}
		if msg.Ts != "500.0" {
			t.Errorf("ts fallback broken: %+v", msg)
		}
	})
}

func TestMarkRead(t *testing.T) {
	c := newStubAPI(t, map[string]http.HandlerFunc{
		"conversations.mark": func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if ts := r.PostForm.Get("ts"); ts != "42.0" {
				t.Errorf("ts = %q", ts)
			}
			fmt.Fprint(w, `{"ok":true}`)
		},
	})
	if err := c.MarkRead(context.Background(), "C1", "42.0"); err != nil {
		t.Fatal(err)
	}
}

func TestTsLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"100.0", "200.0", true},
		{"200.0", "100.0", false},
		{"100.0", "100.0", false},
		{"", "100.0", true},
		{"100.0", "", false},
		{"1690000000.000123", "1690000000.000124", true},
		{"9.0", "10.0", true}, // numeric, not lexicographic
	}
	for _, tc := range cases {
		if got := tsLess(tc.a, tc.b); got != tc.want {
			t.Errorf("tsLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
