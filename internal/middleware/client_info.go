package middleware

import (
	"github.com/campusportal/transport-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// ClientInfo stores the caller's IP and user agent on the request context so
// services can attach them to audit entries without seeing gin.
func ClientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithClientInfo(c.Request.Context(), utils.ClientInfo{
			IPAddress: utils.GetRealIP(c),
			UserAgent: utils.GetUserAgent(c),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
