package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/config"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestProvider(t *testing.T, handler http.Handler) (*KindeProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewKindeProvider(&config.KindeConfig{
		Domain:       srv.URL,
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
	}, &config.HTTPConfig{Timeout: 2 * time.Second})
	p.now = func() time.Time { return fixedNow }
	return p, srv
}

func writeToken(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestExchangeCode(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "the-verifier", r.PostForm.Get("code_verifier"))
		assert.Equal(t, "http://localhost:3100/callback", r.PostForm.Get("redirect_uri"))
		assert.Equal(t, "test_client_id", r.PostForm.Get("client_id"))
		assert.Equal(t, "test_client_secret", r.PostForm.Get("client_secret"))

		writeToken(w, http.StatusOK, map[string]interface{}{
			"access_token":  "access",
			"refresh_token": "refresh",
			"id_token":      "id",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))

	ts, err := p.ExchangeCode(context.Background(), "the-code", "the-verifier", "http://localhost:3100/callback")
	require.NoError(t, err)
	assert.Equal(t, "access", ts.AccessToken)
	assert.Equal(t, "refresh", ts.RefreshToken)
	assert.Equal(t, "id", ts.IDToken)
	assert.Equal(t, fixedNow.Add(3600*time.Second-30*time.Second), ts.ExpiresAt)
}

func TestExchangeCode_MissingExpiresIn(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, http.StatusOK, map[string]interface{}{"access_token": "access", "token_type": "bearer"})
	}))

	_, err := p.ExchangeCode(context.Background(), "c", "v", "http://localhost:3100/callback")
	var exchange *autherr.ExchangeError
	require.ErrorAs(t, err, &exchange)
	assert.Equal(t, "invalid_response", exchange.Code)
}

func TestExchangeCode_MalformedBody(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))

	_, err := p.ExchangeCode(context.Background(), "c", "v", "http://localhost:3100/callback")
	assert.ErrorIs(t, err, autherr.ErrExchange)
}

func TestRefresh_KeepsPriorRefreshToken(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		writeToken(w, http.StatusOK, map[string]interface{}{
			"access_token": "new-access",
			"token_type":   "bearer",
			"expires_in":   600,
		})
	}))

	ts, err := p.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", ts.AccessToken)
	assert.Equal(t, "old-refresh", ts.RefreshToken)
	assert.Equal(t, fixedNow.Add(570*time.Second), ts.ExpiresAt)
}

func TestRefresh_Rotated(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, http.StatusOK, map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "bearer",
			"expires_in":    600,
		})
	}))

	ts, err := p.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", ts.RefreshToken)
}

func TestRefresh_Classification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]interface{}
		wantIs  error
		wantErr string
	}{
		{
			name:   "invalid grant",
			status: http.StatusBadRequest,
			body:   map[string]interface{}{"error": "invalid_grant", "error_description": "revoked"},
			wantIs: autherr.ErrNonRetriable,
		},
		{
			name:    "invalid client",
			status:  http.StatusUnauthorized,
			body:    map[string]interface{}{"error": "invalid_client"},
			wantIs:  autherr.ErrExchange,
			wantErr: "invalid_client",
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    map[string]interface{}{"error": "server_error"},
			wantIs:  autherr.ErrExchange,
			wantErr: "status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeToken(w, tt.status, tt.body)
			}))

			_, err := p.Refresh(context.Background(), "refresh")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRefresh_NetworkFailure(t *testing.T) {
	p, srv := newTestProvider(t, http.NotFoundHandler())
	srv.Close()

	_, err := p.Refresh(context.Background(), "refresh")
	assert.ErrorIs(t, err, autherr.ErrRetriable)
}

func TestUserInfo_Profile(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/v2/user_profile", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		writeToken(w, http.StatusOK, map[string]interface{}{
			"sub":         "kp_123",
			"email":       "user@example.com",
			"given_name":  "Test",
			"family_name": "User",
		})
	}))

	info, err := p.UserInfo(context.Background(), "access", "")
	require.NoError(t, err)
	assert.Equal(t, "kp_123", info.ID)
	assert.Equal(t, "user@example.com", info.Email)
	assert.Equal(t, "Test", info.GivenName)
	assert.Equal(t, "User", info.LastName)
}

func TestUserInfo_FallsBackToIDTokenClaims(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "kp_456",
		"email": "claims@example.com",
	}).SignedString([]byte("unrelated-key"))
	require.NoError(t, err)

	info, err := p.UserInfo(context.Background(), "opaque-access", idToken)
	require.NoError(t, err)
	assert.Equal(t, "kp_456", info.ID)
	assert.Equal(t, "claims@example.com", info.Email)
}

func TestUserInfo_NothingResolves(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := p.UserInfo(context.Background(), "opaque-access", "")
	assert.Error(t, err)
}
