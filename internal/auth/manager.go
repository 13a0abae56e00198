// Package auth decides whether the stored token can be used as is, needs a
// silent refresh or requires an interactive login, and runs that login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/auth/notifier"
	"github.com/brizzai/arclio-login/internal/auth/providers"
	"github.com/brizzai/arclio-login/internal/auth/store"
	"github.com/brizzai/arclio-login/internal/config"
	"github.com/brizzai/arclio-login/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Listener is one single-use redirect endpoint
type Listener interface {
	Start(ctx context.Context) error
	Port() int
	RedirectURI() string
	Wait(ctx context.Context, expectedState string) (string, error)
	Close() error
}

// ListenerFactory creates a fresh Listener for each login attempt
type ListenerFactory func() Listener

// AuthorizationBuilder creates the browser URL and the secrets of one attempt
type AuthorizationBuilder interface {
	Build(redirectURI string, port int) (string, *models.PendingAuthorization, error)
}

type ManagerParams struct {
	fx.In

	Kinde     *config.KindeConfig
	Store     store.Store
	Builder   AuthorizationBuilder
	Listeners ListenerFactory
	Provider  providers.Provider
	Notifier  notifier.Notifier
}

type Manager struct {
	kinde     *config.KindeConfig
	store     store.Store
	builder   AuthorizationBuilder
	listeners ListenerFactory
	provider  providers.Provider
	notifier  notifier.Notifier
	now       func() time.Time
}

func NewManager(p ManagerParams) *Manager {
	n := p.Notifier
	if n == nil {
		n = notifier.Quiet{}
	}
	return &Manager{
		kinde:     p.Kinde,
		store:     p.Store,
		builder:   p.Builder,
		listeners: p.Listeners,
		provider:  p.Provider,
		notifier:  n,
		now:       time.Now,
	}
}

// Login runs the interactive browser flow and stores the resulting tokens.
// The store is only written when every step succeeded.
func (m *Manager) Login(ctx context.Context) (*models.UserInfo, error) {
	if err := m.kinde.Validate(); err != nil {
		return nil, err
	}

	listener := m.listeners()
	if err := listener.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := listener.Close(); err != nil {
			logger.Debug("Failed to close callback listener", zap.Error(err))
		}
	}()

	authURL, pending, err := m.builder.Build(listener.RedirectURI(), listener.Port())
	if err != nil {
		return nil, err
	}

	m.notifier.Prompt(authURL)
	stop := m.notifier.Waiting()
	code, err := listener.Wait(ctx, pending.State)
	stop(err == nil)
	if err != nil {
		logger.Warn("Login did not complete", zap.Error(err))
		return nil, err
	}

	tokens, err := m.provider.ExchangeCode(ctx, code, pending.CodeVerifier, pending.RedirectURI)
	if err != nil {
		return nil, err
	}

	info, err := m.provider.UserInfo(ctx, tokens.AccessToken, tokens.IDToken)
	if err != nil {
		logger.Warn("Could not resolve user identity", zap.Error(err))
		info = &models.UserInfo{}
	}
	tokens.WithIdentity(info)

	if err := m.store.Save(tokens); err != nil {
		return nil, err
	}

	logger.Info("Login complete", zap.String("user_id", info.ID), zap.Time("expires_at", tokens.ExpiresAt))
	return info, nil
}

// GetValidToken returns an access token usable right now, refreshing it
// once when it has expired. quiet suppresses user-facing progress output.
func (m *Manager) GetValidToken(ctx context.Context, quiet bool) (string, error) {
	n := m.notifier
	if quiet {
		n = notifier.Quiet{}
	}

	tokens, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", autherr.ErrNotLoggedIn
	}
	if !tokens.Expired(m.now()) {
		return tokens.AccessToken, nil
	}

	if tokens.RefreshToken == "" {
		m.clear()
		return "", autherr.ErrReauthenticationRequired
	}
	if err := m.kinde.Validate(); err != nil {
		return "", err
	}

	n.Info("Access token expired, refreshing")
	logger.Debug("Refreshing access token", zap.Time("expired_at", tokens.ExpiresAt))

	fresh, err := m.provider.Refresh(ctx, tokens.RefreshToken)
	switch {
	case errors.Is(err, autherr.ErrNonRetriable):
		m.clear()
		return "", fmt.Errorf("%w: %w", autherr.ErrReauthenticationRequired, err)
	case errors.Is(err, autherr.ErrRetriable):
		return "", fmt.Errorf("%w: %w", autherr.ErrTransient, err)
	case err != nil:
		return "", err
	}

	fresh.UserEmail = tokens.UserEmail
	fresh.UserID = tokens.UserID
	if fresh.IDToken == "" {
		fresh.IDToken = tokens.IDToken
	}

	if err := m.store.Save(fresh); err != nil {
		// The new access token is still good for this call
		logger.Error("Failed to persist refreshed credentials", zap.Error(err))
	}
	return fresh.AccessToken, nil
}

// Status reports the stored session without contacting the provider
func (m *Manager) Status() (*models.Status, error) {
	tokens, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	status := &models.Status{State: models.SessionLoggedOut, Location: m.store.Path()}
	if tokens == nil {
		return status, nil
	}

	status.ExpiresAt = tokens.ExpiresAt
	status.UserEmail = tokens.UserEmail
	status.UserID = tokens.UserID
	status.State = models.SessionValid
	if tokens.Expired(m.now()) {
		status.State = models.SessionExpired
	}
	return status, nil
}

// Logout deletes the stored credentials. Logging out twice is not an error.
func (m *Manager) Logout() error {
	if err := m.store.Clear(); err != nil && !errors.Is(err, autherr.ErrNotFound) {
		return err
	}
	return nil
}

func (m *Manager) clear() {
	if err := m.store.Clear(); err != nil && !errors.Is(err, autherr.ErrNotFound) {
		logger.Error("Failed to clear rejected credentials", zap.Error(err))
	}
}
