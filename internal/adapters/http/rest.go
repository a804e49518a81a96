package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

type restHandlers struct {
	proto        *app.Protocol
	historyLimit int
}

func (h *restHandlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"storageConnected": h.proto.Store().Connected(),
	})
}

func (h *restHandlers) messages(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := h.proto.Store().Messages(c.Request.Context(), roomID, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *restHandlers) participants(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))

	parts, err := h.proto.Store().Participants(c.Request.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("list participants")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	if parts == nil {
		parts = []domain.Participant{}
	}
	c.JSON(http.StatusOK, gin.H{"participants": parts})
}
