package auth

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID        = "user_id"
	ContextWalletAddress = "wallet_address"
)

// AuthMiddleware admits requests carrying a valid wallet session
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must be: Bearer <token>",
			})
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			log.Printf("[Auth] Rejected session from %s: %v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextWalletAddress, claims.WalletAddress)
		c.Next()
	}
}

// bearerToken extracts the token of a "Bearer <token>" header. The scheme
// is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID returns the signed-in user
func GetUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetWalletAddress returns the wallet the user signed in with
func GetWalletAddress(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextWalletAddress)
	if !exists {
		return "", false
	}
	addr, ok := v.(string)
	return addr, ok && addr != ""
}
