package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionCookieName = "admin_session_token"

// AuthMiddleware accepts requests carrying token either as a bearer
// Authorization header or in the admin session cookie.
func AuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin token not configured on server"})
			c.Abort()
			return
		}

		presented := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			presented = strings.TrimPrefix(header, "Bearer ")
		} else if cookie, err := c.Cookie(sessionCookieName); err == nil {
			presented = cookie
		}

		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing admin token"})
			c.Abort()
			return
		}
		if !validToken(presented, token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid admin token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func validToken(presented, token string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
