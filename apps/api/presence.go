package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/relay"
)

func (h *HTTPHandler) GetUsers(c *gin.Context) {
	room := c.Param("room")
	if err := relay.ValidateRoom(room); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: err.Error()})
		return
	}

	if h.members == nil {
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: []model.Identity{}})
		return
	}

	users, err := h.members.Members(c.Request.Context(), room)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to fetch presence")
		c.JSON(http.StatusInternalServerError, APIResponse{Error: "failed to fetch presence"})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: users})
}
