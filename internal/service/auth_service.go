package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/quizrunner/internal/config"
)

// Common auth errors.
var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Role is the platform role carried in the token.
type Role string

const (
	RoleCandidate  Role = "candidate"
	RoleSupervisor Role = "supervisor"
)

// Claims are the platform-issued JWT claims. The candidate id is the subject.
type Claims struct {
	jwt.RegisteredClaims
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// CandidateID returns the subject of the token.
func (c *Claims) CandidateID() string {
	return c.Subject
}

// AuthService validates tokens issued by the platform with a shared HS256 secret.
type AuthService struct {
	secret []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{secret: []byte(cfg.JWTSecret)}
}

// ValidateToken parses and validates a JWT string.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueToken signs a token the way the platform does. Used by tooling and tests.
func (s *AuthService) IssueToken(subject string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
