package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/utils"
)

// RequestLogger tags every request with an X-Request-ID (kept when the client
// sent one) and logs method, path, status and latency when it completes.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	log = utils.OrNop(log)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			fields := []zap.Field{
				zap.String("request_id", id),
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("user", userID(c)),
			}
			if err != nil {
				log.Warn("request failed", append(fields, zap.Error(err))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		}
	}
}
