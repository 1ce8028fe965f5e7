package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/core"
	"github.com/vovakirdan/chatgenie-server/internal/proto"
	"github.com/vovakirdan/chatgenie-server/internal/store"
)

// UserHandlers provides HTTP handlers for user listings.
type UserHandlers struct {
	store    store.UserStore
	registry *core.Registry
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, registry *core.Registry, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// ListUsers returns every registered user except the caller.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		// don't show self
		if u.ID == uid {
			continue
		}
		response = append(response, UserResponse{ID: u.ID, Username: u.Username})
	}

	c.JSON(http.StatusOK, response)
}

// OnlineUsers returns the current presence list.
// GET /api/users/online
func (h *UserHandlers) OnlineUsers(c *gin.Context) {
	entries := h.registry.List()
	response := make([]proto.UserEntry, 0, len(entries))
	for _, entry := range entries {
		response = append(response, userEntry(entry))
	}
	c.JSON(http.StatusOK, response)
}
