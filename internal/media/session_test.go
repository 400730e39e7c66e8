package media

import (
	"context"
	"errors"
	"testing"

	"github.com/ege-ayan/discloned/internal/auth"
)

type fakeFetcher struct {
	token string
	err   error
	calls int
	room  string
	user  string
}

func (f *fakeFetcher) FetchToken(ctx context.Context, room, username string) (string, error) {
	f.calls++
	f.room = room
	f.user = username
	return f.token, f.err
}

var ada = auth.Identity{UserID: "u1", FirstName: "Ada", LastName: "Lovelace"}

func TestSession_Ready(t *testing.T) {
	s := NewSession("chat-1", true, false)
	if s.State() != SessionLoading {
		t.Fatalf("initial state = %v, want loading", s.State())
	}

	f := &fakeFetcher{token: "lk_abc"}
	s.Load(context.Background(), f, ada)

	if s.State() != SessionReady {
		t.Errorf("state = %v, want ready", s.State())
	}
	if s.Token() != "lk_abc" {
		t.Errorf("Token() = %q, want lk_abc", s.Token())
	}
	if f.room != "chat-1" || f.user != "Ada Lovelace" {
		t.Errorf("fetched room=%q user=%q", f.room, f.user)
	}
}

func TestSession_IncompleteIdentity(t *testing.T) {
	s := NewSession("chat-1", true, true)
	f := &fakeFetcher{token: "lk_abc"}

	s.Load(context.Background(), f, auth.Identity{FirstName: "Ada"})

	if f.calls != 0 {
		t.Errorf("calls = %d, want 0", f.calls)
	}
	if s.State() != SessionLoading {
		t.Errorf("state = %v, want loading", s.State())
	}
}

func TestSession_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "rejected", err: &TokenError{StatusCode: 401, Message: MsgRetrieveFailed}, wantMsg: MsgRetrieveFailed},
		{name: "transport", err: &TokenError{Message: MsgFetchFailed, Err: errors.New("dial")}, wantMsg: MsgFetchFailed},
		{name: "other error", err: errors.New("boom"), wantMsg: MsgFetchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("chat-1", false, true)
			s.Load(context.Background(), &fakeFetcher{err: tt.err}, ada)

			if s.State() != SessionFailed {
				t.Errorf("state = %v, want failed", s.State())
			}
			if s.ErrorMessage() != tt.wantMsg {
				t.Errorf("ErrorMessage() = %q, want %q", s.ErrorMessage(), tt.wantMsg)
			}
			if s.Token() != "" {
				t.Errorf("Token() = %q, want empty", s.Token())
			}
		})
	}
}

func TestSession_ReloadReplacesOutcome(t *testing.T) {
	s := NewSession("chat-1", true, true)

	s.Load(context.Background(), &fakeFetcher{err: &TokenError{Message: MsgRetrieveFailed}}, ada)
	if s.State() != SessionFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}

	s.Load(context.Background(), &fakeFetcher{token: "lk_new"}, ada)
	if s.State() != SessionReady || s.ErrorMessage() != "" {
		t.Errorf("state = %v, error = %q, want ready", s.State(), s.ErrorMessage())
	}
}

func TestSessionState_String(t *testing.T) {
	for state, want := range map[SessionState]string{
		SessionLoading:  "loading",
		SessionReady:    "ready",
		SessionFailed:   "failed",
		SessionState(9): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
