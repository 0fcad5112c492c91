package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Cross-origin chat clients are expected
	},
}

// handleWebSocket upgrades the socket and hands it to the session
// controller, which runs to completion. The handler only forwards; every
// policy decision (credential, room id, membership) is made inside the
// controller so failures surface as a policy-violation close code rather
// than an HTTP status.
func (s *Server) handleWebSocket(c echo.Context) error {
	credential := bearerToken(c.Request())
	roomParam := c.QueryParam("room_id")

	sock, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	s.sessions.HandleSession(c.Request().Context(), sock, credential, roomParam)
	return nil
}
