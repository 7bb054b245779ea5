package cache

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session exists for the credential.
var ErrSessionNotFound = errors.New("session not found")

// SessionEntry is a cached session record. Sessions are issued elsewhere in
// the platform; this service only reads them to authenticate callers.
type SessionEntry struct {
	AccountID string    `redis:"accountId" json:"account_id"`
	ExpiresAt time.Time `redis:"expiresAt" json:"expires_at"`
}

// SessionStore resolves a hashed session credential to its session entry.
type SessionStore interface {
	// Get returns the session for the credential hash, or
	// ErrSessionNotFound.
	Get(ctx context.Context, credentialHash string) (*SessionEntry, error)

	// Set stores a session under the credential hash until it expires.
	Set(ctx context.Context, credentialHash string, entry *SessionEntry) error

	// Delete removes the session for the credential hash.
	Delete(ctx context.Context, credentialHash string) error
}
