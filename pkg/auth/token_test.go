package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTokenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE api_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		token_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		expires_at TIMESTAMP,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		revoked_at TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func TestGenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, prefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q missing prefix %q", token, TokenPrefix)
	}
	if err := tg.ValidateTokenFormat(token); err != nil {
		t.Errorf("generated token fails format validation: %v", err)
	}
	if hash != tg.HashToken(token) {
		t.Error("returned hash does not match HashToken")
	}
	if !strings.HasPrefix(token, prefix) {
		t.Errorf("prefix %q is not a prefix of token %q", prefix, token)
	}
	if len(prefix) != len(TokenPrefix)+8 {
		t.Errorf("expected 8-char identifying prefix, got %q", prefix)
	}
}

func TestValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	bad := []string{
		"",
		"gk_",
		"sk_abcdefgh",
		"gk_not!base64url",
	}
	for _, token := range bad {
		if err := tg.ValidateTokenFormat(token); err == nil {
			t.Errorf("expected %q to fail format validation", token)
		}
	}
}

func TestCreateAndValidateToken(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	record, plaintext, err := ts.CreateToken(ctx, 7, "ci-deploy", nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected a persisted token ID")
	}

	validated, err := ts.ValidateToken(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if validated.ID != record.ID || validated.UserID != 7 {
		t.Errorf("validated wrong token: %+v", validated)
	}
	if validated.LastUsedAt == nil {
		t.Error("expected last_used_at to be stamped")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	// Well-formed but never minted.
	token, _, _, err := NewTokenGenerator().GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	_, err = ts.ValidateToken(ctx, token)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestValidateRevokedToken(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	record, plaintext, err := ts.CreateToken(ctx, 7, "ci-deploy", nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	if err := ts.RevokeToken(ctx, record.ID); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	_, err = ts.ValidateToken(ctx, plaintext)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}

	// Revoking again is a no-op.
	if err := ts.RevokeToken(ctx, record.ID); err != nil {
		t.Errorf("second revoke should be a no-op, got %v", err)
	}
}

func TestRevokeUnknownToken(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	err := ts.RevokeToken(ctx, 9999)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	past := time.Now().UTC().Add(-time.Hour)
	_, plaintext, err := ts.CreateToken(ctx, 7, "expired", &past)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	_, err = ts.ValidateToken(ctx, plaintext)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestListUserTokens(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	for _, name := range []string{"first", "second", "third"} {
		if _, _, err := ts.CreateToken(ctx, 7, name, nil); err != nil {
			t.Fatalf("CreateToken(%s) failed: %v", name, err)
		}
	}
	if _, _, err := ts.CreateToken(ctx, 8, "other-user", nil); err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	tokens, err := ts.ListUserTokens(ctx, 7)
	if err != nil {
		t.Fatalf("ListUserTokens failed: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}
	if tokens[0].Name != "third" {
		t.Errorf("expected newest first, got %q", tokens[0].Name)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(setupTokenDB(t))

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	if _, _, err := ts.CreateToken(ctx, 7, "stale", &past); err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if _, _, err := ts.CreateToken(ctx, 7, "fresh", &future); err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if _, _, err := ts.CreateToken(ctx, 7, "forever", nil); err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	removed, err := ts.CleanupExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredTokens failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed token, got %d", removed)
	}

	remaining, err := ts.ListUserTokens(ctx, 7)
	if err != nil {
		t.Fatalf("ListUserTokens failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 remaining tokens, got %d", len(remaining))
	}
}
