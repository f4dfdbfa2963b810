// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/edunlpx/identity/internal/config"
	"github.com/edunlpx/identity/internal/core"
	"github.com/edunlpx/identity/internal/rbac"
)

func newTestJWTManager(
	t *testing.T,
	accessExpire time.Duration,
) *JWTManager {
	t.Helper()

	dir := t.TempDir()
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")

	if err := GenerateKeyPair(privatePath, publicPath); err != nil {
		t.Fatalf("generate key pair: %v", err)
	}

	manager, err := NewJWTManager(config.JWTConfig{
		PrivateKeyPath:     privatePath,
		PublicKeyPath:      publicPath,
		AccessTokenExpire:  accessExpire,
		RefreshTokenExpire: 168 * time.Hour,
		Issuer:             "identity-service",
		Audience:           "edunlpx-api",
	})
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}
	return manager
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := newTestJWTManager(t, 15*time.Minute)

	signed, err := manager.CreateAccessToken(AccessTokenClaims{
		UserID:       "user-123",
		Role:         rbac.RoleTeacher,
		TokenVersion: 3,
	})
	if err != nil {
		t.Fatalf("create access token: %v", err)
	}

	claims, err := manager.ParseAccessToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != "user-123" {
		t.Errorf("user id = %q", claims.UserID)
	}
	if claims.Role != rbac.RoleTeacher {
		t.Errorf("role = %q", claims.Role)
	}
	if claims.TokenVersion != 3 {
		t.Errorf("token version = %d", claims.TokenVersion)
	}
	if claims.TokenID == "" {
		t.Error("missing jti")
	}
	if claims.ExpiresAt.IsZero() {
		t.Error("missing expiry")
	}
}

func TestParseExpiredAccessToken(t *testing.T) {
	manager := newTestJWTManager(t, -1*time.Minute)

	signed, err := manager.CreateAccessToken(AccessTokenClaims{
		UserID: "user-123",
		Role:   rbac.RoleStudent,
	})
	if err != nil {
		t.Fatalf("create access token: %v", err)
	}

	_, err = manager.ParseAccessToken(context.Background(), signed)
	if !errors.Is(err, core.ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestParseGarbageToken(t *testing.T) {
	manager := newTestJWTManager(t, 15*time.Minute)

	_, err := manager.ParseAccessToken(
		context.Background(),
		"not.a.token",
	)
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseTokenFromDifferentKey(t *testing.T) {
	signer := newTestJWTManager(t, 15*time.Minute)
	verifier := newTestJWTManager(t, 15*time.Minute)

	signed, err := signer.CreateAccessToken(AccessTokenClaims{
		UserID: "user-123",
		Role:   rbac.RoleStudent,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = verifier.ParseAccessToken(context.Background(), signed)
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("foreign signature error = %v, want ErrTokenInvalid", err)
	}
}

// staticVersionChecker stands in for the user store's token_version
// gate in tests that only exercise signature and denylist handling.
type staticVersionChecker struct {
	err error
}

func (s staticVersionChecker) ValidateTokenVersion(
	_ context.Context,
	_ string,
	_ int,
) error {
	return s.err
}

func TestVerifierChecksDenylist(t *testing.T) {
	manager := newTestJWTManager(t, 15*time.Minute)
	denylist := NewMemoryDenylist()
	verifier := NewVerifier(manager, denylist, staticVersionChecker{})
	ctx := context.Background()

	signed, err := manager.CreateAccessToken(AccessTokenClaims{
		UserID: "user-123",
		Role:   rbac.RoleStudent,
	})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := verifier.VerifyAccessToken(ctx, signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if err := denylist.Revoke(
		ctx,
		claims.TokenID,
		time.Until(claims.ExpiresAt),
	); err != nil {
		t.Fatal(err)
	}

	_, err = verifier.VerifyAccessToken(ctx, signed)
	if !errors.Is(err, core.ErrTokenRevoked) {
		t.Errorf("denylisted token error = %v, want ErrTokenRevoked", err)
	}
}

func TestVerifierRejectsStaleTokenVersion(t *testing.T) {
	manager := newTestJWTManager(t, 15*time.Minute)
	stale := fmt.Errorf("validate token version: %w", core.ErrTokenRevoked)
	verifier := NewVerifier(
		manager,
		NewMemoryDenylist(),
		staticVersionChecker{err: stale},
	)

	signed, err := manager.CreateAccessToken(AccessTokenClaims{
		UserID: "user-123",
		Role:   rbac.RoleStudent,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = verifier.VerifyAccessToken(context.Background(), signed)
	if !errors.Is(err, core.ErrTokenRevoked) {
		t.Errorf("stale version error = %v, want ErrTokenRevoked", err)
	}
}

func TestCreateRefreshToken(t *testing.T) {
	manager := newTestJWTManager(t, 15*time.Minute)

	data, err := manager.CreateRefreshToken("user-123", "")
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}

	if data.Token == "" {
		t.Fatal("empty refresh token")
	}
	if data.Hash != core.HashToken(data.Token) {
		t.Error("hash does not match token")
	}
	if data.FamilyID == "" {
		t.Error("missing family id for fresh login")
	}

	rotated, err := manager.CreateRefreshToken("user-123", data.FamilyID)
	if err != nil {
		t.Fatal(err)
	}
	if rotated.FamilyID != data.FamilyID {
		t.Error("rotation did not preserve the family id")
	}
	if rotated.Token == data.Token {
		t.Error("rotation reused the token value")
	}
}

func TestMemoryDenylistExpiry(t *testing.T) {
	denylist := NewMemoryDenylist()
	ctx := context.Background()

	if err := denylist.Revoke(ctx, "jti-1", 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	revoked, err := denylist.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked = %v, %v; want true", revoked, err)
	}

	time.Sleep(30 * time.Millisecond)

	revoked, err = denylist.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatal(err)
	}
	if revoked {
		t.Error("entry did not expire")
	}

	// Non-positive TTL means the token is already past expiry.
	if err := denylist.Revoke(ctx, "jti-2", 0); err != nil {
		t.Fatal(err)
	}
	revoked, _ = denylist.IsRevoked(ctx, "jti-2")
	if revoked {
		t.Error("zero-ttl revoke stored an entry")
	}
}
