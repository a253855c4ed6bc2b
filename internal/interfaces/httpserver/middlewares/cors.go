package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the configured comma separated origins.
func CORSMiddleware(origins string) gin.HandlerFunc {
	allowedOrigins := map[string]bool{}
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins[origin] || allowedOrigins["*"] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id, X-Ms-Client-Principal-Id, X-Ms-Client-Principal-Name, X-Ms-Client-Principal-Idp")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-Id, apim-request-id")
		c.Writer.Header().Set("Access-Control-Max-Age", "3600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
