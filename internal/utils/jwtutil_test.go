package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, exp, err := issuer.GenerateToken(42, "maria")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Error("expected expiry in the future")
	}

	claims, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.EmployeeID != 42 || claims.Username != "maria" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _, _ := NewTokenIssuer("a", time.Hour).GenerateToken(1, "x")

	_, err := NewTokenIssuer("b", time.Hour).ParseToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	issuer := NewTokenIssuer("s", -time.Minute)
	token, _, _ := issuer.GenerateToken(1, "x")

	if _, err := issuer.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestEmployeeContext(t *testing.T) {
	if _, ok := EmployeeIDFrom(context.Background()); ok {
		t.Error("expected no employee on empty context")
	}
	if EmployeeRef(context.Background()) != nil {
		t.Error("expected nil ref")
	}

	ctx := WithEmployeeID(context.Background(), 9)
	id, ok := EmployeeIDFrom(ctx)
	if !ok || id != 9 {
		t.Errorf("expected 9, got %d", id)
	}
	if ref := EmployeeRef(ctx); ref == nil || *ref != 9 {
		t.Errorf("expected ref 9, got %v", ref)
	}
}
