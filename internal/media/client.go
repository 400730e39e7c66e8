package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// User-visible failure messages.
const (
	MsgRetrieveFailed = "Failed to retrieve token"
	MsgFetchFailed    = "An error occurred while fetching the token"
)

// TokenError is a failed token request. Message is safe to show to users.
type TokenError struct {
	StatusCode int // Zero when no response was received
	Message    string
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("media token status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("media token: %s: %v", e.Message, e.Err)
	}
	return "media token: " + e.Message
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// TokenFetcher issues a media access token for a user in a room.
type TokenFetcher interface {
	FetchToken(ctx context.Context, room, username string) (string, error)
}

// TokenClient requests tokens from the token service over HTTP.
type TokenClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a TokenClient.
type ClientOption func(*TokenClient)

// NewTokenClient creates a client for the token service at endpoint.
func NewTokenClient(endpoint string, opts ...ClientOption) *TokenClient {
	c := &TokenClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *TokenClient) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *TokenClient) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *TokenClient) {
		c.httpClient = hc
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// FetchToken requests a token for username in room. Every failure is a *TokenError.
func (c *TokenClient) FetchToken(ctx context.Context, room, username string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", &TokenError{Message: MsgFetchFailed, Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	query := u.Query()
	query.Set("room", room)
	query.Set("username", username)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &TokenError{Message: MsgFetchFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("media token request failed", "room", room, "error", err)
		return "", &TokenError{Message: MsgFetchFailed, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("media token request rejected", "room", room, "status", resp.StatusCode)
		return "", &TokenError{StatusCode: resp.StatusCode, Message: MsgRetrieveFailed}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Error("media token response malformed", "room", room, "error", err)
		return "", &TokenError{Message: MsgFetchFailed, Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.Token == "" {
		c.logger.Error("media token response has no token", "room", room)
		return "", &TokenError{Message: MsgFetchFailed, Err: errors.New("empty token")}
	}

	c.logger.Debug("media token issued", "room", room)
	return body.Token, nil
}
