package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tvlink-server/tvlink-server/internal/config"
	"github.com/tvlink-server/tvlink-server/internal/models"
	"github.com/tvlink-server/tvlink-server/pkg/crypto"
)

func testUser() *models.User {
	return &models.User{
		ID:      uuid.New(),
		Email:   "admin@example.com",
		IsAdmin: true,
	}
}

func newTestManager(accessTTL, refreshTTL time.Duration) *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "unit-test-secret",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	})
}

func TestTokenPairRoundTrip(t *testing.T) {
	m := newTestManager(time.Minute, time.Hour)
	user := testUser()

	access, refresh, err := m.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("empty token pair")
	}

	claims, err := m.ValidateToken(access)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("userID = %s, want %s", claims.UserID, user.ID)
	}
	if claims.Email != user.Email {
		t.Errorf("email = %q", claims.Email)
	}
	if !claims.IsAdmin {
		t.Error("isAdmin lost")
	}

	subject, err := m.RefreshSubject(refresh)
	if err != nil {
		t.Fatalf("refresh subject: %v", err)
	}
	if subject != user.ID {
		t.Errorf("refresh subject = %s, want %s", subject, user.ID)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	m := newTestManager(time.Minute, time.Hour)
	other := newTestManager(time.Minute, time.Hour)
	other.config.Secret = "different-secret"

	access, _, err := m.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.ValidateToken(access); err == nil {
		t.Error("token signed with another secret accepted")
	}
	if _, err := m.ValidateToken("not.a.jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := newTestManager(-time.Minute, -time.Minute)

	access, refresh, err := m.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.ValidateToken(access); err == nil {
		t.Error("expired access token accepted")
	}
	if _, err := m.RefreshSubject(refresh); err == nil {
		t.Error("expired refresh token accepted")
	}
}

func TestRefreshSubjectRejectsAccessTokenSecretMismatch(t *testing.T) {
	m := newTestManager(time.Minute, time.Hour)
	other := newTestManager(time.Minute, time.Hour)
	other.config.Secret = "different-secret"

	_, refresh, err := m.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.RefreshSubject(refresh); err == nil {
		t.Error("refresh token signed with another secret accepted")
	}
}

func TestPasswordVerify(t *testing.T) {
	m := newTestManager(time.Minute, time.Hour)

	hash, err := crypto.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !m.VerifyPassword("s3cret", hash) {
		t.Error("correct password rejected")
	}
	if m.VerifyPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}
