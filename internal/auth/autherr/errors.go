// Package autherr holds the error kinds shared by the login flow and the
// token lifecycle. Callers match them with errors.Is and errors.As.
package autherr

import (
	"errors"
	"fmt"
)

var (
	ErrConfigurationMissing     = errors.New("kinde oauth not configured")
	ErrPortUnavailable          = errors.New("no callback port available")
	ErrAuthorizationDenied      = errors.New("authorization denied")
	ErrStateMismatch            = errors.New("state mismatch in authorization callback")
	ErrTimeout                  = errors.New("timed out waiting for authorization callback")
	ErrRetriable                = errors.New("token endpoint unreachable")
	ErrNonRetriable             = errors.New("refresh token rejected")
	ErrNotLoggedIn              = errors.New("not logged in")
	ErrReauthenticationRequired = errors.New("session expired, reauthentication required")
	ErrTransient                = errors.New("temporary failure refreshing token")
	ErrIOFailure                = errors.New("credential storage failure")
	ErrNotFound                 = errors.New("no stored credentials")
	ErrExchange                 = errors.New("token exchange failed")
)

// ExchangeError is returned when the token endpoint answers with an
// unexpected status or a body that cannot be used.
type ExchangeError struct {
	Code        string
	Description string
	Status      int
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("token exchange failed (status %d)", e.Status)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// Is makes errors.Is(err, ErrExchange) hold for every ExchangeError
func (e *ExchangeError) Is(target error) bool {
	return target == ErrExchange
}

// DeniedError carries the error parameters the provider redirected with
type DeniedError struct {
	Code        string
	Description string
}

func (e *DeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s: %s", e.Code, e.Description)
	}
	return "authorization denied: " + e.Code
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrAuthorizationDenied
}

// UserMessage turns an error from the auth packages into a short, actionable
// line for a terminal user.
func UserMessage(err error) string {
	var denied *DeniedError
	var exchange *ExchangeError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigurationMissing):
		return err.Error()
	case errors.Is(err, ErrNotLoggedIn):
		return "not logged in, run `arclio login` first"
	case errors.Is(err, ErrReauthenticationRequired):
		return "session expired, run `arclio login` again"
	case errors.Is(err, ErrTransient), errors.Is(err, ErrRetriable):
		return "could not reach the identity provider, check your network and try again"
	case errors.Is(err, ErrPortUnavailable):
		return "all callback ports are in use, close other login attempts and try again"
	case errors.Is(err, ErrTimeout):
		return "timed out waiting for the browser, run `arclio login` again"
	case errors.Is(err, ErrStateMismatch):
		return "the authorization response did not match this login attempt, run `arclio login` again"
	case errors.As(err, &denied):
		return denied.Error()
	case errors.As(err, &exchange):
		return exchange.Error()
	case errors.Is(err, ErrIOFailure):
		return "could not access stored credentials: " + err.Error()
	default:
		return err.Error()
	}
}
