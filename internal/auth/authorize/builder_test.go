package authorize

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/brizzai/arclio-login/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder() *Builder {
	return NewBuilder(&config.KindeConfig{
		Domain:       "https://test.kinde.com",
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
	})
}

func TestBuild_URL(t *testing.T) {
	authURL, pending, err := testBuilder().Build("http://127.0.0.1:3100/callback", 3100)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "test.kinde.com", u.Host)
	assert.Equal(t, "/oauth2/auth", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "test_client_id", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:3100/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email offline_access", q.Get("scope"))
	assert.Equal(t, pending.State, q.Get("state"))
	assert.Equal(t, pending.Nonce, q.Get("nonce"))
	assert.Equal(t, pending.CodeChallenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Empty(t, q.Get("client_secret"))

	assert.Equal(t, 3100, pending.Port)
	assert.Equal(t, "http://127.0.0.1:3100/callback", pending.RedirectURI)
	assert.False(t, pending.CreatedAt.IsZero())
}

func TestBuild_PKCEChallengeMatchesVerifier(t *testing.T) {
	_, pending, err := testBuilder().Build("http://127.0.0.1:3100/callback", 3100)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(pending.CodeVerifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), pending.CodeChallenge)
	assert.NotContains(t, pending.CodeChallenge, "=")
	assert.Len(t, pending.CodeVerifier, 43)
}

func TestBuild_FreshSecretsEachTime(t *testing.T) {
	b := testBuilder()
	_, first, err := b.Build("http://127.0.0.1:3100/callback", 3100)
	require.NoError(t, err)
	_, second, err := b.Build("http://127.0.0.1:3100/callback", 3100)
	require.NoError(t, err)

	assert.NotEqual(t, first.State, second.State)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
	assert.Len(t, first.State, 43)
}
