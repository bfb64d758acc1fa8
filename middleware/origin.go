package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Origin validation hook for the websocket endpoint; adjust to your own
// domain/token policy.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == "/ws" {
			// Example: validate Header/Cookie/JWT here.
			// token := c.GetHeader("X-Token")
			// if token == "" { c.AbortWithStatus(401); return }
		}
		c.Next()
	}
}
