package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateJWT("user-1", RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseJWT(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseJWTRejects(t *testing.T) {
	InitJWT("test-secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, _ := expired.SignedString([]byte("test-secret"))

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1"})
	foreignToken, _ := foreign.SignedString([]byte("other-secret"))

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: RoleUser})
	noUserToken, _ := noUser.SignedString([]byte("test-secret"))

	tests := map[string]string{
		"expired":      expiredToken,
		"wrong secret": foreignToken,
		"no user":      noUserToken,
		"garbage":      "not-a-token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseJWT(tok); err == nil {
				t.Fatalf("token accepted")
			}
		})
	}
}

func TestParseJWTDefaultsRole(t *testing.T) {
	InitJWT("test-secret")
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u"}).SignedString([]byte("test-secret"))

	claims, err := ParseJWT(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != RoleUser {
		t.Fatalf("role = %q", claims.Role)
	}
}
