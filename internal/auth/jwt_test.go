package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	j := JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour}

	token, expiresAt, err := j.Sign(Claims{VoterID: "v1", Role: RoleVoter})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if time.Until(expiresAt) < 55*time.Minute {
		t.Fatalf("expiresAt=%v too soon", expiresAt)
	}

	claims, err := j.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.VoterID != "v1" || claims.Role != RoleVoter {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	j := JWT{Secret: []byte("secret-a"), TokenTTL: time.Hour}
	token, _, err := j.Sign(Claims{VoterID: "v1", Role: RoleVoter})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := JWT{Secret: []byte("secret-b"), TokenTTL: time.Hour}
	if _, err := other.Verify(token); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	j := JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour}
	past := jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token, _, err := j.Sign(Claims{
		VoterID:          "v1",
		Role:             RoleVoter,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := j.Verify(token); err == nil {
		t.Fatalf("expected expired-token failure")
	}
}
