package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies gatekeeper tokens
	TokenPrefix = "gk_"
	// TokenLength is the number of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrTokenExpired  = errors.New("token expired")
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: gk_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after "gk_" identify the token in listings.
	prefix := TokenPrefix
	if len(encoded) >= 8 {
		prefix = TokenPrefix + encoded[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA-256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct shape
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenStore manages the API token lifecycle against the database
type TokenStore struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenStore creates a token store on the given database
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken mints a token for the user and returns the plaintext
// exactly once; only the hash is persisted.
func (ts *TokenStore) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := ts.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	record := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}

	err = ts.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		record.UserID, record.TokenHash, record.TokenPrefix, record.Name, record.ExpiresAt, record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return record, token, nil
}

// ValidateToken resolves a plaintext token to its record, rejecting
// revoked and expired tokens, and stamps last_used_at.
func (ts *TokenStore) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := ts.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	tokenHash := ts.generator.HashToken(token)

	record, err := ts.getByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if record.Revoked() {
		return nil, ErrTokenRevoked
	}
	if record.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	now := time.Now().UTC()
	if _, err := ts.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`,
		now, record.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update last_used_at: %w", err)
	}
	record.LastUsedAt = &now

	return record, nil
}

// RevokeToken marks a token as revoked. Revoking an already revoked
// token is a no-op.
func (ts *TokenStore) RevokeToken(ctx context.Context, tokenID int64) error {
	result, err := ts.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}
	if affected == 0 {
		// Either the token does not exist or it is already revoked.
		if _, err := ts.getByID(ctx, tokenID); err != nil {
			return err
		}
	}

	return nil
}

// ListUserTokens returns all of a user's tokens, newest first
func (ts *TokenStore) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := ts.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		record, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, record)
	}
	return tokens, rows.Err()
}

// CleanupExpiredTokens deletes tokens whose expiry has passed and
// returns how many were removed.
func (ts *TokenStore) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := ts.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup tokens: %w", err)
	}
	return result.RowsAffected()
}

func (ts *TokenStore) getByHash(ctx context.Context, tokenHash string) (*APIToken, error) {
	row := ts.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE token_hash = $1`,
		tokenHash,
	)
	record, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return record, err
}

func (ts *TokenStore) getByID(ctx context.Context, tokenID int64) (*APIToken, error) {
	row := ts.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE id = $1`,
		tokenID,
	)
	record, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return record, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*APIToken, error) {
	var record APIToken
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.TokenHash,
		&record.TokenPrefix,
		&record.Name,
		&record.ExpiresAt,
		&record.LastUsedAt,
		&record.CreatedAt,
		&record.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
