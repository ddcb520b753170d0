package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
	// ContextKeyToken is the Gin context key for the raw bearer token, forwarded to the platform.
	ContextKeyToken = "token"
)

// TokenValidator validates platform-issued tokens.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireCandidateJWT validates a candidate JWT from the Authorization header.
func RequireCandidateJWT(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorize(c, auth, bearerToken(c))
	}
}

// RequireCandidateWSAuth validates a candidate JWT from the query param ?token=...
// Browsers cannot set headers on a WebSocket upgrade.
func RequireCandidateWSAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			tokenStr = bearerToken(c)
		}
		authorize(c, auth, tokenStr)
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, _ := val.(*service.Claims)
	return claims
}

// GetToken returns the raw token the request was authenticated with.
func GetToken(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}

func authorize(c *gin.Context, auth TokenValidator, tokenStr string) {
	if tokenStr == "" {
		response.AbortFail(c, response.ErrTokenRequired)
		return
	}

	claims, err := auth.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			response.AbortFail(c, response.ErrTokenExpired)
			return
		}
		response.AbortFail(c, response.ErrTokenInvalid)
		return
	}

	if claims.Role != service.RoleCandidate {
		response.AbortFail(c, response.ErrForbidden)
		return
	}

	c.Set(ContextKeyClaims, claims)
	c.Set(ContextKeyToken, tokenStr)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
