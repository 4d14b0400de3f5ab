package mockapi

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("shared-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"ok", "Bearer a.b.c", "a.b.c", nil},
		{"padded", "  Bearer a.b.c  ", "a.b.c", nil},
		{"lowercase scheme", "bearer a.b.c", "a.b.c", nil},
		{"empty", "", "", errMissingAuthorization},
		{"blank", "   ", "", errMissingAuthorization},
		{"basic", "Basic dXNlcjpwYXNz", "", errBadAuthorization},
		{"not a jwt", "Bearer token", "", errBadAuthorization},
		{"many periods", "Bearer " + strings.Repeat(".", 100), "", errBadAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerToken(tc.header)
			if err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("token = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSharedSecretAuth(t *testing.T) {
	auth := NewSharedSecretAuth(testSecret)
	now := time.Now()

	valid := signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix(), "iat": now.Unix()})
	sub, err := auth.UserIDFromAuthHeader("Bearer " + valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != "alice" {
		t.Fatalf("sub = %q, want alice", sub)
	}

	rejected := map[string]string{
		"expired":      signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": now.Add(-time.Hour).Unix()}),
		"no exp":       signToken(t, testSecret, jwt.MapClaims{"sub": "alice"}),
		"no sub":       signToken(t, testSecret, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}),
		"wrong secret": signToken(t, []byte("other"), jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()}),
	}
	for name, token := range rejected {
		if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestJWKSAuthWithoutKeys(t *testing.T) {
	auth := NewJWKSAuth(nil, "aud", "https://issuer/")
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "alice"})
	token.Header["kid"] = "k1"
	if _, err := auth.keyForToken(token); err == nil || err.Error() != "jwks not configured" {
		t.Fatalf("expected jwks not configured, got %v", err)
	}
	hs := signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := auth.UserIDFromToken(hs); err == nil {
		t.Fatalf("expected HS256 token to be rejected in JWKS mode")
	}
}
