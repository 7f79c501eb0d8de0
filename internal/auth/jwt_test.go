package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	tok, err := SignToken("s3cret", 42, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := ParseToken("s3cret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Subject != "42" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ParseToken("other", tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret should fail, got %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	tok, err := SignToken("s3cret", 1, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken("s3cret", tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token should fail, got %v", err)
	}
}

func TestSignRequiresSecret(t *testing.T) {
	if _, err := SignToken("", 1, time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
