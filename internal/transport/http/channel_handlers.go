package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/service/messages"
	"github.com/vovakirdan/chatgenie-server/internal/store"
)

// ChannelHandlers provides HTTP handlers for channel management endpoints.
type ChannelHandlers struct {
	messages *messages.Service
	log      *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(svc *messages.Service, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		messages: svc,
		log:      logger,
	}
}

// CreateChannelRequest represents the create channel request body.
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func channelResponse(ch *store.Channel) ChannelResponse {
	return ChannelResponse{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		CreatedAt:   ch.CreatedAt,
	}
}

// CreateChannel handles channel creation.
// POST /api/channels
func (h *ChannelHandlers) CreateChannel(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create channel request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ch, err := h.messages.CreateChannel(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrEmptyChannelName):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channel name is required"})
		case errors.Is(err, messages.ErrChannelNameExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "channel with this name already exists"})
		default:
			h.log.Error().Err(err).Str("name", req.Name).Msg("failed to create channel")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("channel_id", ch.ID).Str("name", ch.Name).Int64("user_id", uid).Msg("channel created successfully")
	c.JSON(http.StatusCreated, channelResponse(ch))
}

// ListChannels handles listing all channels, newest first.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	channels, err := h.messages.ListChannels(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list channels")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		response = append(response, channelResponse(ch))
	}

	c.JSON(http.StatusOK, response)
}
