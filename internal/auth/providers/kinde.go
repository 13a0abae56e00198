package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/auth/constants"
	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/config"
	"github.com/brizzai/arclio-login/internal/logger"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type KindeProvider struct {
	oauth2Config *oauth2.Config
	profileURL   string
	httpClient   *http.Client
	now          func() time.Time
}

func NewKindeProvider(cfg *config.KindeConfig, httpCfg *config.HTTPConfig) *KindeProvider {
	timeout := constants.HTTPTimeout
	if httpCfg != nil && httpCfg.Timeout > 0 {
		timeout = httpCfg.Timeout
	}

	return &KindeProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Domain + constants.AuthorizePath,
				TokenURL:  cfg.Domain + constants.TokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: constants.Scopes,
		},
		profileURL: cfg.Domain + constants.UserProfilePath,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (p *KindeProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *KindeProvider) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*models.TokenSet, error) {
	cfg := *p.oauth2Config // copy
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(p.withClient(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return p.tokenSet(token, "")
}

func (p *KindeProvider) Refresh(ctx context.Context, refreshToken string) (*models.TokenSet, error) {
	token, err := p.oauth2Config.TokenSource(p.withClient(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
	}).Token()
	if err != nil {
		return nil, classify(ctx, err)
	}
	return p.tokenSet(token, refreshToken)
}

// tokenSet converts a token endpoint response, rejecting responses that
// cannot yield an expiry.
func (p *KindeProvider) tokenSet(token *oauth2.Token, priorRefresh string) (*models.TokenSet, error) {
	if token.AccessToken == "" {
		return nil, &autherr.ExchangeError{Code: "invalid_response", Description: "missing access_token", Status: http.StatusOK}
	}
	if token.ExpiresIn <= 0 {
		return nil, &autherr.ExchangeError{Code: "invalid_response", Description: "missing expires_in", Status: http.StatusOK}
	}

	ts := &models.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    p.now().Add(time.Duration(token.ExpiresIn)*time.Second - constants.ExpirySkew),
	}
	if ts.RefreshToken == "" {
		ts.RefreshToken = priorRefresh
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		ts.IDToken = idToken
	}
	return ts, nil
}

// classify maps an error from the token endpoint onto the autherr kinds
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode == "invalid_grant" && status >= 400 && status < 500 {
			return fmt.Errorf("%w: %s", autherr.ErrNonRetriable, retrieveErr.ErrorCode)
		}
		logger.Warn("Token endpoint returned an error",
			zap.Int("status", status),
			zap.String("error", retrieveErr.ErrorCode),
		)
		return &autherr.ExchangeError{
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
			Status:      status,
		}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		logger.Warn("Token endpoint unreachable", zap.Error(err))
		return fmt.Errorf("%w: %v", autherr.ErrRetriable, err)
	}

	// Anything else is a 2xx body the oauth2 package could not use
	return &autherr.ExchangeError{Code: "invalid_response", Description: err.Error(), Status: http.StatusOK}
}

// UserInfo asks the profile endpoint who the token belongs to and falls back
// to the unverified claims of the id token, then the access token.
func (p *KindeProvider) UserInfo(ctx context.Context, accessToken, idToken string) (*models.UserInfo, error) {
	info, err := p.fetchProfile(ctx, accessToken)
	if err == nil {
		return info, nil
	}
	logger.Debug("Profile lookup failed, decoding token claims", zap.Error(err))

	for _, raw := range []string{idToken, accessToken} {
		if raw == "" {
			continue
		}
		if info, cerr := claimsUserInfo(raw); cerr == nil {
			return info, nil
		}
	}
	return nil, fmt.Errorf("failed to resolve user identity: %w", err)
}

func (p *KindeProvider) fetchProfile(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	client := oauth2.NewClient(p.withClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   constants.TokenType,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call user profile endpoint: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user profile request failed with status %d", resp.StatusCode)
	}

	var profile struct {
		Sub        string `json:"sub"`
		ID         string `json:"id"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile response: %w", err)
	}

	id := profile.Sub
	if id == "" {
		id = profile.ID
	}
	if id == "" {
		return nil, fmt.Errorf("user profile response has no subject")
	}

	return &models.UserInfo{
		ID:        id,
		Email:     profile.Email,
		GivenName: profile.GivenName,
		LastName:  profile.FamilyName,
		Picture:   profile.Picture,
	}, nil
}

// claimsUserInfo reads identity claims without verifying the signature
func claimsUserInfo(raw string) (*models.UserInfo, error) {
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, err
	}

	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}

	info := &models.UserInfo{
		ID:        str("sub"),
		Email:     str("email"),
		GivenName: str("given_name"),
		LastName:  str("family_name"),
		Picture:   str("picture"),
	}
	if info.ID == "" {
		return nil, fmt.Errorf("token has no sub claim")
	}
	return info, nil
}
