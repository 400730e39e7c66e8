package media

import (
	"context"
	"errors"
	"sync"

	"github.com/ege-ayan/discloned/internal/auth"
)

// SessionState is the display state of a media session.
type SessionState int

const (
	SessionLoading SessionState = iota
	SessionReady
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "loading"
	case SessionReady:
		return "ready"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one audio/video room view for a chat.
type Session struct {
	ChatID string
	Video  bool
	Audio  bool

	mu    sync.Mutex
	token string
	err   string
}

// NewSession creates a session for the chat's room.
func NewSession(chatID string, video, audio bool) *Session {
	return &Session{ChatID: chatID, Video: video, Audio: audio}
}

// Load fetches a token for the caller. An identity without a full name
// leaves the session loading and makes no request. Each call replaces the
// outcome of the previous one.
func (s *Session) Load(ctx context.Context, fetcher TokenFetcher, id auth.Identity) {
	name, ok := id.DisplayName()
	if !ok {
		return
	}

	token, err := fetcher.FetchToken(ctx, s.ChatID, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.token = ""
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			s.err = tokenErr.Message
		} else {
			s.err = MsgFetchFailed
		}
		return
	}
	s.token = token
	s.err = ""
}

// State reports whether the session is loading, ready or failed.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.err != "":
		return SessionFailed
	case s.token != "":
		return SessionReady
	default:
		return SessionLoading
	}
}

// Token returns the access token once the session is ready.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ErrorMessage returns the user-visible failure message, if any.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
