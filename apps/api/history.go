package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/relay"
)

func (h *HTTPHandler) ListRooms(c *gin.Context) {
	activity, err := history.RoomActivity(c.Request.Context(), h.store)
	if err != nil {
		h.storeError(c, err, "failed to list rooms")
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: activity})
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	room := c.Param("room")
	if err := relay.ValidateRoom(room); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}

	msgs, err := h.store.ReadAll(c.Request.Context(), room)
	if err != nil {
		h.storeError(c, err, "failed to get room history")
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: msgs})
}

// DeleteMessage removes one of the caller's own messages.
func (h *HTTPHandler) DeleteMessage(c *gin.Context) {
	room := c.Param("room")
	if err := relay.ValidateRoom(room); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "invalid message id"})
		return
	}

	ctx := c.Request.Context()
	msgs, err := h.store.ReadAll(ctx, room)
	if err != nil {
		h.storeError(c, err, "failed to read room history")
		return
	}

	me := caller(c)
	for _, m := range msgs {
		if m.ID != id {
			continue
		}
		if m.Author == nil || m.Author.ID != me.ID {
			c.JSON(http.StatusForbidden, APIResponse{Error: "only the author can delete a message"})
			return
		}

		deleted, err := h.store.Delete(ctx, room, id)
		if err != nil {
			h.storeError(c, err, "failed to delete message")
			return
		}

		l := log.Ctx(ctx)
		l.Info().Str(log.FieldRoom, room).Str(log.FieldMessageID, id.String()).Int64(log.FieldUserID, me.ID).Msg("message deleted")
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: deleted})
		return
	}

	c.JSON(http.StatusNotFound, APIResponse{Error: "message not found"})
}

func (h *HTTPHandler) storeError(c *gin.Context, err error, msg string) {
	l := log.Ctx(c.Request.Context())
	l.Error().Err(err).Msg(msg)

	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, APIResponse{Error: "message not found"})
	case errors.Is(err, history.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, APIResponse{Error: msg})
	default:
		c.JSON(http.StatusInternalServerError, APIResponse{Error: msg})
	}
}
