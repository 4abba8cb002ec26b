package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

type LoginRequest struct {
	ID   int64  `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type LoginResponse struct {
	Token    string         `json:"token"`
	Identity model.Identity `json:"identity"`
}

// Login issues a token for any identity. Only mounted with api.dev_login.
func (h *HTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "id and name are required"})
		return
	}

	id := model.Identity{ID: req.ID, Name: req.Name}
	token, err := h.auth.Manager().GenerateToken(id)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to generate token")
		c.JSON(http.StatusInternalServerError, APIResponse{Error: "failed to generate token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.CookieName(), token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: LoginResponse{Token: token, Identity: id}})
}

func (h *HTTPHandler) Validate(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: caller(c)})
}
