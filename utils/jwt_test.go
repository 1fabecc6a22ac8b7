package utils

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-123", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateJWT(token, "test-secret")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("user id = %q", claims.UserID)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("user-123", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateJWT(token, "other-secret"); err == nil {
		t.Error("token validated with the wrong secret")
	}
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT("user-123", "test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateJWT(token, "test-secret"); err == nil {
		t.Error("expired token accepted")
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"abc.def.ghi", "abc.def.ghi"},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractTokenFromHeader(c.in); got != c.want {
			t.Errorf("ExtractTokenFromHeader(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
