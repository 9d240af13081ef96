package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/auth"
	"github.com/lmskit/gatekeeper/pkg/httputil"
)

// CreateTokenRequest is the body of POST /v1/users/{id}/tokens
type CreateTokenRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateTokenResponse carries the plaintext token. It is returned
// exactly once; only the hash is stored.
type CreateTokenResponse struct {
	Token    *auth.APIToken `json:"token"`
	Plaintext string        `json:"plaintext"`
}

// createToken handles POST /v1/users/{id}/tokens
func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req CreateTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at is in the past")
		return
	}

	record, plaintext, err := s.tokens.CreateToken(r.Context(), userID, req.Name, req.ExpiresAt)
	if err != nil {
		s.auditMutation(r, audit.ActionTokenCreate, "api_token", req.Name, audit.StatusFailure, err)
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(r, audit.ActionTokenCreate, "api_token", strconv.FormatInt(record.ID, 10), audit.StatusSuccess, nil)
	httputil.WriteCreated(w, CreateTokenResponse{Token: record, Plaintext: plaintext})
}

// listTokens handles GET /v1/users/{id}/tokens
func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	tokens, err := s.tokens.ListUserTokens(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, tokens)
}

// revokeToken handles DELETE /v1/tokens/{id}
func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.tokens.RevokeToken(r.Context(), tokenID); err != nil {
		s.auditMutation(r, audit.ActionTokenRevoke, "api_token", strconv.FormatInt(tokenID, 10), audit.StatusFailure, err)
		if errors.Is(err, auth.ErrTokenNotFound) {
			httputil.WriteNotFoundError(w, "token not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(r, audit.ActionTokenRevoke, "api_token", strconv.FormatInt(tokenID, 10), audit.StatusSuccess, nil)
	httputil.WriteNoContent(w)
}
