package identity

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func mintToken(t *testing.T, secret string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  "alice@example.com",
		"role": "verified",
		"iss":  defaultIssuer,
		"aud":  defaultAudience,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerifyValidToken(t *testing.T) {
	v := newTestVerifier(t)
	claims, err := v.Verify(mintToken(t, testSecret, nil))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Email != "alice@example.com" || claims.Role != "verified" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newTestVerifier(t)
	if _, err := v.Verify(mintToken(t, "other-secret", nil)); err == nil {
		t.Fatal("token signed with a different secret accepted")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(t)
	token := mintToken(t, testSecret, func(c jwt.MapClaims) {
		c["iat"] = time.Now().Add(-2 * time.Hour).Unix()
		c["exp"] = time.Now().Add(-time.Hour).Unix()
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	v := newTestVerifier(t)
	token := mintToken(t, testSecret, func(c jwt.MapClaims) {
		c["aud"] = "some-other-api"
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("token for another audience accepted")
	}
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	v := newTestVerifier(t)

	token := mintToken(t, testSecret, func(c jwt.MapClaims) {
		delete(c, "role")
	})
	if _, err := v.Verify(token); err == nil || !strings.Contains(err.Error(), "role") {
		t.Fatalf("missing role err = %v", err)
	}

	token = mintToken(t, testSecret, func(c jwt.MapClaims) {
		delete(c, "sub")
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("token without subject accepted")
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	v := newTestVerifier(t)
	claims := jwt.MapClaims{
		"sub":  "alice@example.com",
		"role": "verified",
		"iss":  defaultIssuer,
		"aud":  defaultAudience,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Fatal("alg=none token accepted")
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("verifier built without a secret")
	}
}
