package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/lmskit/gatekeeper/pkg/auth"
	"github.com/lmskit/gatekeeper/pkg/contextkeys"
	"github.com/lmskit/gatekeeper/pkg/httputil"
	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

// IdentityResolver verifies an OIDC bearer token and extracts the
// caller identity. Implemented by auth.OIDCResolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, rawToken string) (*auth.Identity, error)
}

// UserLookup resolves a token's user record. Implemented by the
// permissions SQL store.
type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*permissions.User, error)
}

// AuthMiddleware authenticates requests. Tokens carrying the gk_
// prefix are service API tokens; anything else is treated as an OIDC
// ID token when a resolver is configured.
type AuthMiddleware struct {
	tokens   *auth.TokenStore
	resolver IdentityResolver
	users    UserLookup
	admin    *permissions.Admin
	logger   *observability.Logger
}

// NewAuthMiddleware creates the auth middleware. tokens and resolver
// may each be nil when the corresponding credential kind is disabled.
func NewAuthMiddleware(tokens *auth.TokenStore, resolver IdentityResolver, users UserLookup, admin *permissions.Admin, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		resolver: resolver,
		users:    users,
		admin:    admin,
		logger:   logger,
	}
}

// Handler rejects requests without a valid credential and stores the
// resolved Identity in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing or malformed Authorization header")
			return
		}

		identity, err := m.authenticate(r.Context(), rawToken)
		if err != nil {
			m.logger.WithError(err).WithField("path", r.URL.Path).Warn("authentication failed")
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(ctx context.Context, rawToken string) (*auth.Identity, error) {
	if strings.HasPrefix(rawToken, auth.TokenPrefix) {
		if m.tokens == nil {
			return nil, auth.ErrTokenNotFound
		}

		record, err := m.tokens.ValidateToken(ctx, rawToken)
		if err != nil {
			return nil, err
		}

		user, err := m.users.GetUser(ctx, record.UserID)
		if err != nil {
			return nil, err
		}

		return &auth.Identity{
			Subject: user.Subject,
			Name:    user.Name,
			Email:   user.Email,
			UserID:  user.ID,
		}, nil
	}

	if m.resolver == nil {
		return nil, auth.ErrTokenNotFound
	}

	identity, err := m.resolver.Resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	// First sight of a subject registers it with the default role.
	user, err := m.admin.EnsureUserRegistered(ctx, identity.Subject, identity.Name, identity.Email)
	if err != nil {
		return nil, err
	}
	identity.UserID = user.ID

	return identity, nil
}

// GetIdentity returns the authenticated identity from the request, or
// nil when the request did not pass through the auth middleware.
func GetIdentity(r *http.Request) *auth.Identity {
	identity, _ := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
