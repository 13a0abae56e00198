package constants

import "time"

const (
	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "

	// Kinde endpoint paths, relative to the auth domain
	AuthorizePath   = "/oauth2/auth"
	TokenPath       = "/oauth2/token"
	UserProfilePath = "/oauth2/v2/user_profile"

	// CallbackPath is where the provider redirects the browser
	CallbackPath = "/callback"

	// HealthPath answers liveness probes on the callback listener
	HealthPath = "/health"

	// CallbackHost is the loopback address the listener binds to
	CallbackHost = "127.0.0.1"

	// RedirectHost is the host name registered with the provider for the redirect URI
	RedirectHost = "localhost"

	// ShutdownTimeout bounds the graceful stop of the callback listener
	ShutdownTimeout = 5 * time.Second

	// CallbackTimeout bounds the wait for the browser redirect
	CallbackTimeout = 120 * time.Second

	// HTTPTimeout bounds each call to the token and profile endpoints
	HTTPTimeout = 30 * time.Second

	// ExpirySkew is subtracted from the provider-reported lifetime
	ExpirySkew = 30 * time.Second

	// RandomBytes is the entropy of state, nonce and code verifier
	RandomBytes = 32

	// PKCEMethod is the only supported code challenge method
	PKCEMethod = "S256"

	// Keyring coordinates for the keyring storage backend
	KeyringService = "arclio"
	KeyringUser    = "credentials"

	// CredentialsFile is the file name inside the storage directory
	CredentialsFile = "credentials.json"
)

// DefaultCallbackPorts are tried in order when starting the listener
var DefaultCallbackPorts = []int{3100, 3101, 3102, 3103, 3104}

// Scopes requested on every login; offline_access yields a refresh token
var Scopes = []string{"openid", "profile", "email", "offline_access"}
