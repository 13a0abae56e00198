package auth

import (
	"github.com/brizzai/arclio-login/internal/auth/authorize"
	"github.com/brizzai/arclio-login/internal/auth/callback"
	"github.com/brizzai/arclio-login/internal/auth/providers"
	"github.com/brizzai/arclio-login/internal/auth/store"
	"github.com/brizzai/arclio-login/internal/config"
	"go.uber.org/fx"
)

// NewListenerFactory hands out loopback listeners bound to cfg
func NewListenerFactory(cfg *config.CallbackConfig) ListenerFactory {
	return func() Listener {
		return callback.NewListener(cfg)
	}
}

// Module provides the Manager. The notifier.Notifier is supplied by the caller.
var Module = fx.Module("auth",
	fx.Provide(
		store.New,
		fx.Annotate(
			authorize.NewBuilder,
			fx.As(new(AuthorizationBuilder)),
		),
		fx.Annotate(
			providers.NewKindeProvider,
			fx.As(new(providers.Provider)),
		),
		NewListenerFactory,
		NewManager,
	),
)
