package service

import (
	"errors"
	"testing"
	"time"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService("secret", 15*time.Minute)

	token, err := svc.IssueAccessToken(42, "ana", RoleDriver)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ana" || claims.Role != RoleDriver {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Subject != "42" {
		t.Errorf("subject = %q, want 42", claims.Subject)
	}
}

func TestAuthService_WrongSecret(t *testing.T) {
	token, _ := NewAuthService("secret", time.Minute).IssueAccessToken(1, "a", RoleAdmin)
	if _, err := NewAuthService("other", time.Minute).ValidateAccessToken(token); err == nil {
		t.Fatal("token signed with another secret validated")
	}
}

func TestAuthService_Expired(t *testing.T) {
	svc := NewAuthService("secret", time.Minute)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	token, err := svc.IssueAccessToken(1, "a", RoleRider)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := svc.ValidateAccessToken(token); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestAuthService_MissingSecret(t *testing.T) {
	svc := NewAuthService("", time.Minute)
	if _, err := svc.IssueAccessToken(1, "a", RoleRider); !errors.Is(err, ErrJWTSecretMissing) {
		t.Errorf("issue err = %v, want ErrJWTSecretMissing", err)
	}
	if _, err := svc.ValidateAccessToken("x"); !errors.Is(err, ErrJWTSecretMissing) {
		t.Errorf("validate err = %v, want ErrJWTSecretMissing", err)
	}
}

func TestAuthService_Garbage(t *testing.T) {
	if _, err := NewAuthService("secret", time.Minute).ValidateAccessToken("not-a-jwt"); err == nil {
		t.Fatal("garbage token validated")
	}
}
