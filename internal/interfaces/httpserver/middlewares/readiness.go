package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/envchat-api/internal/utils/platformerrors"
	"jan-server/services/envchat-api/internal/utils/readiness"
)

// WaitForReady blocks requests until gate is signalled or the request is
// cancelled.
func WaitForReady(gate *readiness.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.Wait(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, platformerrors.HTTPErrorResponse{
				Error: &platformerrors.HTTPErrorDetail{
					Message:   "chat history is not ready",
					Type:      "service_unavailable",
					RequestID: RequestIDFromContext(c),
				},
			})
			return
		}
		c.Next()
	}
}
