package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	userIDContextKey  = "user_id"
	rateLimiterExpiry = 5 * time.Minute
)

// requireAuth resolves the bearer credential on REST routes and stores the
// user id in the request context. The WebSocket route does not use this;
// its authorization lives in the session controller.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		credential := bearerToken(c.Request())
		if credential == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
		}

		userID, ok := s.verifier.Verify(c.Request().Context(), credential)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
		}

		c.Set(userIDContextKey, userID)
		return next(c)
	}
}

func currentUserID(c echo.Context) int64 {
	id, _ := c.Get(userIDContextKey).(int64)
	return id
}

// bearerToken extracts the credential from the Authorization header, or the
// "token" query parameter as a fallback for clients that cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return r.URL.Query().Get("token")
}

func pathParamInt64(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		},
	})
}
