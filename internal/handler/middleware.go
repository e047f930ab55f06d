package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/response"
)

// RateLimitMiddleware 每IP每秒限流，超限返回429与TOO_MANY_REQUESTS状态码
func RateLimitMiddleware(perSecond int) gin.HandlerFunc {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: time.Second,
		Limit:  int64(perSecond),
	})
	return func(c *gin.Context) {
		lctx, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("限流器异常", zap.Error(err))
			c.Next()
			return
		}
		if lctx.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Envelope{
				Status:  response.StatusTooManyRequests,
				Message: "请求过于频繁，请稍后重试",
			})
			return
		}
		c.Next()
	}
}
