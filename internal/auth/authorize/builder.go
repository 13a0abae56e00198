// Package authorize builds the browser URL that starts an authorization
// code + PKCE login.
package authorize

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/constants"
	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/config"
	"golang.org/x/oauth2"
)

type Builder struct {
	oauth2Config *oauth2.Config
	now          func() time.Time
}

func NewBuilder(cfg *config.KindeConfig) *Builder {
	return &Builder{
		oauth2Config: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Domain + constants.AuthorizePath,
				TokenURL:  cfg.Domain + constants.TokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: constants.Scopes,
		},
		now: time.Now,
	}
}

// Build returns the authorization URL for redirectURI together with the
// secrets the caller must keep until the callback arrives.
func (b *Builder) Build(redirectURI string, port int) (string, *models.PendingAuthorization, error) {
	state, err := randomString()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate state: %w", err)
	}
	nonce, err := randomString()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	pending := &models.PendingAuthorization{
		State:         state,
		Nonce:         nonce,
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		RedirectURI:   redirectURI,
		Port:          port,
		CreatedAt:     b.now(),
	}

	cfg := *b.oauth2Config // copy
	cfg.RedirectURL = redirectURI

	authURL := cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", pending.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", constants.PKCEMethod),
	)
	return authURL, pending, nil
}

func randomString() (string, error) {
	b := make([]byte, constants.RandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
