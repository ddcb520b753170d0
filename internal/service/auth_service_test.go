package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stemsi/quizrunner/internal/config"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})

	tok, err := auth.IssueToken("cand-7", RoleCandidate, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.CandidateID() != "cand-7" || claims.Role != RoleCandidate {
		t.Errorf("claims = %+v", claims)
	}
}

func TestAuthServiceRejects(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})
	other := NewAuthService(&config.Config{JWTSecret: "other"})

	expired, _ := auth.IssueToken("cand-7", RoleCandidate, -time.Minute)
	foreign, _ := other.IssueToken("cand-7", RoleCandidate, time.Hour)
	noSubject, _ := auth.IssueToken("", RoleCandidate, time.Hour)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "expired", token: expired, wantErr: ErrTokenExpired},
		{name: "wrong secret", token: foreign, wantErr: ErrTokenInvalid},
		{name: "garbage", token: "not.a.jwt", wantErr: ErrTokenInvalid},
		{name: "no subject", token: noSubject, wantErr: ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
