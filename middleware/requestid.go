package middleware

import (
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/gin-gonic/gin"
)

const RequestIDKey = "request_id"

// RequestID 为每个请求分配ID，透传到响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = utils.NewRequestID()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
