package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/patrimo/patrimo/platform/logger"
)

// The coordination layer never re-derives credentials: the verifier
// yields a user identity for request scoping, and the raw Authorization
// header is forwarded verbatim to downstream calls, which authorize with
// it themselves.

const (
	ctxUserIDKey        = "userID"
	ctxAuthorizationKey = "authorization"
)

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens signed with the shared HS256 secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning its user identity.
func (v *Verifier) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}

		return v.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}

	if claims.UserID == "" {
		return "", errors.New("token carries no user identity")
	}

	return claims.UserID, nil
}

// Sign issues a token for userID; used by tests and local tooling.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(v.secret)
}

// RequireAuth rejects requests without a valid bearer token and stashes
// the user identity and the verbatim Authorization header for handlers.
func RequireAuth(v *Verifier, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}

	authLog := log.With("middleware", "auth")

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		tokenString := ""
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			tokenString = header[7:]
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})

			return
		}

		userID, err := v.Verify(tokenString)
		if err != nil {
			authLog.Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})

			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Set(ctxAuthorizationKey, header)
		c.Next()
	}
}

// UserID returns the authenticated user set by RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserIDKey)
}

// Authorization returns the verbatim credential header for forwarding.
func Authorization(c *gin.Context) string {
	return c.GetString(ctxAuthorizationKey)
}

// BearerHeader returns the request's raw Authorization header, set or
// not; routes outside RequireAuth use it to forward credentials as-is.
func BearerHeader(c *gin.Context) string {
	return c.GetHeader("Authorization")
}
