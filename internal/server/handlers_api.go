package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hong-lou/chatrelay/internal/domain"
	"github.com/hong-lou/chatrelay/internal/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxContentLen   = 4096
)

type sendMessageRequest struct {
	RoomID  int64  `json:"room_id"`
	Content string `json:"content"`
}

type markReadRequest struct {
	LastReadMessageID int64 `json:"last_read_message_id"`
}

// handleSendMessage commits the message row, then publishes the envelope.
// The fanout core picks it up through the bridge like any other publish;
// this process never short-circuits delivery to its own local sockets.
func (s *Server) handleSendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil || req.RoomID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" || len(req.Content) > maxContentLen {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid content"})
	}

	if !s.mustBeParticipant(c, req.RoomID, userID) {
		return nil
	}

	msg, err := s.messages.Insert(ctx, req.RoomID, userID, req.Content)
	if err != nil {
		slog.Error("insert message failed", "room_id", req.RoomID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to send message"})
	}

	envelope := domain.NewMessageEnvelope(msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.CreatedAt)
	s.publishEnvelope(c, envelope)

	// Bump unread counters for everyone but the sender. Best-effort cache.
	if ids, err := s.membership.ParticipantIDs(ctx, req.RoomID); err == nil {
		for _, id := range ids {
			if id == userID {
				continue
			}
			if err := s.unread.Incr(ctx, req.RoomID, id); err != nil {
				slog.Warn("unread incr failed", "room_id", req.RoomID, "user_id", id, "error", err)
			}
		}
	} else {
		slog.Warn("list participants failed", "room_id", req.RoomID, "error", err)
	}

	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleListMessages(c echo.Context) error {
	userID := currentUserID(c)

	roomID, ok := pathParamInt64(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid room id"})
	}
	if !s.mustBeParticipant(c, roomID, userID) {
		return nil
	}

	limit := defaultPageSize
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= maxPageSize {
			limit = n
		}
	}
	var cursor int64
	if raw := c.QueryParam("cursor"); raw != "" {
		cursor, _ = strconv.ParseInt(raw, 10, 64)
	}

	msgs, err := s.messages.List(c.Request().Context(), roomID, limit, cursor)
	if err != nil {
		slog.Error("list messages failed", "room_id", roomID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list messages"})
	}

	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	roomID, ok := pathParamInt64(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid room id"})
	}

	var req markReadRequest
	if err := c.Bind(&req); err != nil || req.LastReadMessageID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if !s.mustBeParticipant(c, roomID, userID) {
		return nil
	}

	if err := s.messages.AdvanceReadCursor(ctx, roomID, userID, req.LastReadMessageID); err != nil {
		slog.Error("advance read cursor failed", "room_id", roomID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to mark read"})
	}

	if err := s.unread.Reset(ctx, roomID, userID); err != nil {
		slog.Warn("unread reset failed", "room_id", roomID, "user_id", userID, "error", err)
	}

	s.publishEnvelope(c, domain.NewMessageReadEnvelope(roomID, userID, req.LastReadMessageID))

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	userID := currentUserID(c)

	roomID, ok := pathParamInt64(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid room id"})
	}
	if !s.mustBeParticipant(c, roomID, userID) {
		return nil
	}

	count, err := s.unread.Get(c.Request().Context(), roomID, userID)
	if err != nil {
		slog.Error("unread get failed", "room_id", roomID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read counter"})
	}

	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

// mustBeParticipant writes a 403 and returns false when the user is not a
// member of the room (or the check itself fails).
func (s *Server) mustBeParticipant(c echo.Context, roomID, userID int64) bool {
	ok, err := s.membership.IsParticipant(c.Request().Context(), roomID, userID)
	if err != nil {
		slog.Error("participant check failed", "room_id", roomID, "error", err)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "membership check failed"})
		return false
	}
	if !ok {
		_ = c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		return false
	}
	return true
}

// publishEnvelope encodes and publishes on the room channel. Publish
// failures are logged, not surfaced: the row is already committed and
// clients recover via the list endpoint.
func (s *Server) publishEnvelope(c echo.Context, e domain.Envelope) {
	payload, err := e.Encode()
	if err != nil {
		slog.Error("encode envelope failed", "kind", string(e.Kind), "error", err)
		return
	}
	if err := s.publisher.Publish(c.Request().Context(), domain.RoomChannel(e.RoomID), payload); err != nil {
		slog.Warn("publish envelope failed", "kind", string(e.Kind), "room_id", e.RoomID, "error", err)
		return
	}
	metrics.PubSubPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
}
