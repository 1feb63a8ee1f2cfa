// Package auth provides the optional OAuth identity-linking flow: signing
// a platform user into an external provider and verifying the returned
// identity so it can be attached to the account.
package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/NaveDanan/HuggingSpace/internal/logging"
)

// LinkerConfig holds the OAuth provider settings.
type LinkerConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Identity is the verified external identity to link to a platform user.
type Identity struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Issuer  string `json:"issuer"`
}

// Linker drives the authorization-code flow against the external provider.
type Linker struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	issuer   string
}

// NewLinker creates a linker from config. Returns nil when no client id is
// configured (identity linking disabled).
func NewLinker(ctx context.Context, cfg LinkerConfig) (*Linker, error) {
	if cfg.ClientID == "" {
		return nil, nil
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("oauth: issuer URL is required when a client id is set")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oauth provider init: %w", err)
	}

	logging.Info("oauth identity linking enabled",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return &Linker{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		issuer:   cfg.IssuerURL,
	}, nil
}

// AuthCodeURL returns the provider URL to send the user to.
func (l *Linker) AuthCodeURL(state string) string {
	return l.oauth.AuthCodeURL(state)
}

// Exchange trades the callback code for tokens and verifies the ID token.
func (l *Linker) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := l.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("oauth: provider returned no id token")
	}

	idToken, err := l.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id token claims: %w", err)
	}

	return &Identity{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Issuer:  l.issuer,
	}, nil
}
