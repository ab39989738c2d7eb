package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoginPayload defines the expected JSON structure for login requests.
type LoginPayload struct {
	Token string `json:"token" binding:"required"`
}

// LoginHandler exchanges a valid admin token for a session cookie, so browsers
// can call admin routes without setting headers.
func LoginHandler(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload LoginPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
			return
		}
		if token == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin token not configured on server"})
			return
		}
		if !validToken(payload.Token, token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		// MaxAge is in seconds; Secure=false so it works on plain HTTP inside a cluster.
		c.SetCookie(sessionCookieName, token, 3600, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
	}
}

// LogoutHandler clears the session cookie.
func LogoutHandler(c *gin.Context) {
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}
