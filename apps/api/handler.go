package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/chatrelay/pkg/auth"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

const identityKey = "identity"

// Members lists who is currently connected to a room.
type Members interface {
	Members(ctx context.Context, room string) ([]model.Identity, error)
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type HTTPHandler struct {
	store    history.Admin
	members  Members
	auth     *auth.RequestAuthenticator
	devLogin bool
}

func NewHTTPHandler(store history.Admin, members Members, authenticator *auth.RequestAuthenticator, devLogin bool) *HTTPHandler {
	return &HTTPHandler{
		store:    store,
		members:  members,
		auth:     authenticator,
		devLogin: devLogin,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	if h.devLogin {
		api.POST("/authenticate", h.Login)
	}

	protected := api.Group("", h.RequireAuth())
	{
		protected.GET("/validate", h.Validate)
		protected.GET("/rooms", h.ListRooms)
		protected.GET("/rooms/:room/messages", h.GetMessages)
		protected.DELETE("/rooms/:room/messages/:uuid", h.DeleteMessage)
		protected.GET("/rooms/:room/users", h.GetUsers)
	}

	r.GET("/health", h.HealthCheck)
}

// RequireAuth rejects requests without a valid token and stores the caller.
func (h *HTTPHandler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.auth.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIResponse{Error: "unauthorized"})
			return
		}
		c.Set(identityKey, id)
		c.Set(log.FieldUserID, id.ID)
		c.Next()
	}
}

func caller(c *gin.Context) model.Identity {
	id, _ := c.Get(identityKey)
	identity, _ := id.(model.Identity)
	return identity
}

// CORSMiddleware lets the listed origins make credentialed requests. A "*"
// entry opens the API to every other origin, but never with credentials.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[strings.ToLower(o)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Header("Vary", "Origin")
		switch {
		case origin != "" && allowed[strings.ToLower(origin)]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		}
		if c.Writer.Header().Get("Access-Control-Allow-Origin") != "" {
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
