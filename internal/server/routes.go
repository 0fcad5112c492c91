package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// WebSocket session entry point. Authorization happens inside the
	// session controller so rejection is visible at the socket layer.
	s.echo.GET("/ws", s.handleWebSocket)

	// REST producer routes (bearer auth + per-IP rate limit)
	limiter := newRateLimiter(s.config.APIRatePerSecond, s.config.APIBurst)
	api := s.echo.Group("/api", s.requireAuth, limiter)
	api.POST("/messages", s.handleSendMessage)
	api.GET("/rooms/:id/messages", s.handleListMessages)
	api.POST("/rooms/:id/read", s.handleMarkRead)
	api.GET("/rooms/:id/unread_count", s.handleUnreadCount)
}
