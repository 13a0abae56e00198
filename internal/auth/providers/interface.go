package providers

import (
	"context"

	"github.com/brizzai/arclio-login/internal/auth/models"
)

// Provider talks to the identity provider's token and profile endpoints
type Provider interface {
	// ExchangeCode trades an authorization code and its PKCE verifier for tokens
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*models.TokenSet, error)

	// Refresh obtains a new access token. The returned set keeps refreshToken
	// when the provider does not rotate it.
	Refresh(ctx context.Context, refreshToken string) (*models.TokenSet, error)

	// UserInfo resolves the identity behind a freshly issued token set
	UserInfo(ctx context.Context, accessToken, idToken string) (*models.UserInfo, error)
}
