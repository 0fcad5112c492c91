package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hong-lou/chatrelay/internal/version"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"build":  version.Get(),
	})
}

// handleReadiness verifies the two backing stores. A process that cannot
// reach Redis cannot fan out; one that cannot reach Postgres cannot
// authorize.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"redis": "ok", "postgres": "ok"}
	status := http.StatusOK

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := s.pool.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, checks)
}
