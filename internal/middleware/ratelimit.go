package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/ratelimit"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
)

// RateLimitMiddleware throttles requests per client IP using the configured
// limiter backend. A limiter failure (e.g. redis down) lets the request
// through: this is abuse deterrence, not quota enforcement.
func RateLimitMiddleware(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()

			ok, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				logger.FromContext(c).Warn("Rate limiter unavailable", zap.Error(err))
				return next(c)
			}
			if !ok {
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "too many requests, slow down",
					"code":  "rate_limited",
				})
			}
			return next(c)
		}
	}
}
