package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// UserInfo represents the authenticated identity returned by the provider
type UserInfo struct {
	ID        string
	Email     string
	GivenName string
	LastName  string
	Picture   string
}

// DisplayName returns the email when known, otherwise the subject
func (u *UserInfo) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// TokenSet is the current set of credentials for the logged-in user.
// ExpiresAt is always set when AccessToken is.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    time.Time
	UserEmail    string
	UserID       string
}

// Expired reports whether the access token can no longer be used at now
func (t *TokenSet) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// WithIdentity copies the subject fields from info onto the token set
func (t *TokenSet) WithIdentity(info *UserInfo) *TokenSet {
	if info == nil {
		return t
	}
	t.UserEmail = info.Email
	t.UserID = info.ID
	return t
}

// PendingAuthorization lives for the duration of one login attempt and is
// never persisted.
type PendingAuthorization struct {
	State         string
	Nonce         string
	CodeVerifier  string
	CodeChallenge string
	RedirectURI   string
	Port          int
	CreatedAt     time.Time
}

// StoredCredentialsVersion is the current on-disk format version
const StoredCredentialsVersion = 1

// StoredCredentials is the persisted form of a TokenSet
type StoredCredentials struct {
	Version      int       `json:"version"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserEmail    string    `json:"user_email,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
}

// NewStoredCredentials converts a TokenSet to its persisted form
func NewStoredCredentials(t *TokenSet) *StoredCredentials {
	return &StoredCredentials{
		Version:      StoredCredentialsVersion,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
		ExpiresAt:    t.ExpiresAt,
		UserEmail:    t.UserEmail,
		UserID:       t.UserID,
	}
}

// TokenSet converts the persisted form back to a TokenSet
func (c *StoredCredentials) TokenSet() *TokenSet {
	return &TokenSet{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		IDToken:      c.IDToken,
		ExpiresAt:    c.ExpiresAt,
		UserEmail:    c.UserEmail,
		UserID:       c.UserID,
	}
}

// UnmarshalJSON accepts expires_at as RFC 3339 text or as an epoch number.
// Version 0 records carry epoch milliseconds, later versions epoch seconds.
func (c *StoredCredentials) UnmarshalJSON(data []byte) error {
	type plain StoredCredentials
	var raw struct {
		plain
		ExpiresAt json.RawMessage `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = StoredCredentials(raw.plain)

	if len(raw.ExpiresAt) == 0 || string(raw.ExpiresAt) == "null" {
		return nil
	}
	if raw.ExpiresAt[0] == '"' {
		return json.Unmarshal(raw.ExpiresAt, &c.ExpiresAt)
	}

	var epoch json.Number
	if err := json.Unmarshal(raw.ExpiresAt, &epoch); err != nil {
		return fmt.Errorf("expires_at: %w", err)
	}
	n, err := epoch.Int64()
	if err != nil {
		return fmt.Errorf("expires_at: %w", err)
	}
	if c.Version == 0 {
		c.ExpiresAt = time.UnixMilli(n)
	} else {
		c.ExpiresAt = time.Unix(n, 0)
	}
	return nil
}

// SessionState is the coarse result of Status
type SessionState string

const (
	SessionLoggedOut SessionState = "logged_out"
	SessionValid     SessionState = "valid"
	SessionExpired   SessionState = "expired"
)

// Status describes the stored session without touching the network
type Status struct {
	State     SessionState
	ExpiresAt time.Time
	UserEmail string
	UserID    string
	Location  string
}
