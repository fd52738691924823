package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKeyMiddleware authenticates every request with a single shared
// secret compared in constant time — this domain has no user accounts, so
// there is nothing for a bearer-JWT flow to authenticate against (see
// internal/events.TokenService for the one place JWTs are still used, for
// channel-scoped capability tokens rather than logins).
func AdminKeyMiddleware(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("X-API-Key"))
		if len(got) != len(want) || subtle.ConstantTimeCompare(got, want) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing api key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware allows any origin, matching the admin API's operator-tool
// consumption pattern rather than a browser-facing public surface.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
