package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader 贯穿 API、导出任务与 worker 回调。
const CorrelationIDHeader = "X-Correlation-ID"

const (
	correlationIDKey      = "correlationID"
	maxCorrelationIDBytes = 64
)

// CorrelationIDMiddleware 沿用调用方传入的 Correlation ID，缺失或格式不合法时生成新的 UUID。
// 该 ID 会写入导出任务载荷，worker 回调内部接口时再带回来。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// validCorrelationID 只接受可安全写入日志与响应头的短标识。
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDBytes {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// GetCorrelationID 从上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}
