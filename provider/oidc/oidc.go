// Package oidc implements a federated identity provider that validates OIDC
// ID tokens against the issuer's JWKS endpoint and maps their claims to a
// normalized profile.
package oidc

import (
	"context"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"

	admin "github.com/siapi-biru/siapi-admin"
)

// Config describes one upstream OIDC issuer.
type Config struct {
	// Name is the strategy name the provider registers under, e.g. "okta".
	Name string

	// Issuer must match the iss claim of every accepted token.
	Issuer string

	// ClientID must appear in the aud claim of every accepted token.
	ClientID string

	// JWKSURL is the issuer's key set endpoint.
	JWKSURL string

	// RefreshInterval controls background key refreshes. Defaults to 1h.
	RefreshInterval time.Duration
}

// Provider validates ID token assertions for a single issuer.
type Provider struct {
	cfg    Config
	jwks   *keyfunc.JWKS
	parser *jwt.Parser
}

var _ admin.FederatedProvider = (*Provider)(nil)

// idTokenClaims is the subset of standard OIDC claims the admin profile
// needs.
type idTokenClaims struct {
	jwt.RegisteredClaims

	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	PreferredUsername string `json:"preferred_username"`
}

// New builds a Provider and starts the background JWKS refresh. Call Close
// when the provider is retired.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" || cfg.JWKSURL == "" {
		return nil, errors.New("oidc provider requires name, issuer, client id and jwks url", errors.CategoryBadInput)
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWT set: %s", err)
		},
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to load JWKS for oidc provider")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.ClientID),
		jwt.WithExpirationRequired(),
	)

	return &Provider{
		cfg:    cfg,
		jwks:   jwks,
		parser: parser,
	}, nil
}

// Name implements admin.FederatedProvider.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// Profile validates the raw ID token and maps its claims. Any validation
// failure is an authentication error; the caller decides how much of it to
// disclose.
func (p *Provider) Profile(ctx context.Context, assertion string) (admin.Profile, error) {
	select {
	case <-ctx.Done():
		return admin.Profile{}, ctx.Err()
	default:
	}

	claims := new(idTokenClaims)

	token, err := p.parser.ParseWithClaims(assertion, claims, p.jwks.Keyfunc)
	if err != nil {
		return admin.Profile{}, errors.Wrap(err, errors.CategoryAuth, "invalid id token")
	}

	if !token.Valid {
		return admin.Profile{}, errors.New("invalid id token", errors.CategoryAuth)
	}

	if claims.Email == "" || !claims.EmailVerified {
		return admin.Profile{}, errors.New("id token carries no verified email", errors.CategoryAuth)
	}

	return admin.Profile{
		Email:     claims.Email,
		Firstname: claims.GivenName,
		Lastname:  claims.FamilyName,
		Username:  claims.PreferredUsername,
	}, nil
}

// Close stops the background JWKS refresh.
func (p *Provider) Close() {
	p.jwks.EndBackground()
}
