// Package auth carries the caller identity issued by the auth provider and
// turns session tokens into handshake headers.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Identity is the signed-in user as reported by the auth provider.
type Identity struct {
	UserID    string
	FirstName string
	LastName  string
	ImageURL  string
}

// DisplayName returns "First Last". It reports false until both names are known.
func (id Identity) DisplayName() (string, bool) {
	first := strings.TrimSpace(id.FirstName)
	last := strings.TrimSpace(id.LastName)
	if first == "" || last == "" {
		return "", false
	}
	return first + " " + last, true
}

// BearerHeader returns handshake headers carrying token. An empty token
// yields an empty header.
func BearerHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// LoadToken reads a session token from a file, trimming surrounding whitespace.
func LoadToken(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("token path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}
