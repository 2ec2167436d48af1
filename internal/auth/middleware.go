package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const signerContextKey = "signer"

// Claims binds a ledger account name to a bearer token.
type Claims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

// TokenFor issues a signed token attesting the given account name.
func TokenFor(account, secret string, ttl time.Duration) (string, error) {
	claims := Claims{
		Account: account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Middleware resolves the signer account from the Authorization header and
// stores it on the request context. Actions without a valid token are
// rejected before any state can be touched.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.Account == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(signerContextKey, claims.Account)
		c.Next()
	}
}

// SignerFrom returns the authenticated account set by Middleware.
func SignerFrom(c *gin.Context) string {
	return c.GetString(signerContextKey)
}
