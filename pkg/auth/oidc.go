package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCResolver verifies ID tokens from an OpenID Connect provider and
// maps their claims onto an Identity.
type OIDCResolver struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCResolver discovers the provider configuration from the
// issuer and builds a verifier bound to the client ID.
func NewOIDCResolver(ctx context.Context, issuer, clientID string) (*OIDCResolver, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCResolver{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Resolve verifies a raw ID token and extracts the caller identity
func (r *OIDCResolver) Resolve(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := r.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}

	return &Identity{
		Subject: idToken.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
	}, nil
}
