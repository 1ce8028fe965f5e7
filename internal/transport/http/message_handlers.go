package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/service/messages"
)

// MessageHandlers provides HTTP handlers for message history and sending.
type MessageHandlers struct {
	messages *messages.Service
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		messages: svc,
		log:      logger,
	}
}

// SendChannelMessageRequest represents the channel message request body.
type SendChannelMessageRequest struct {
	Content   string `json:"content"`
	ChannelID int64  `json:"channelId"`
}

// SendDirectMessageRequest represents the direct message request body.
type SendDirectMessageRequest struct {
	Content    string `json:"content"`
	ReceiverID int64  `json:"receiverId"`
}

// ChannelMessages returns the history of a channel.
// GET /api/messages/:channelId
func (h *MessageHandlers) ChannelMessages(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Param("channelId"), 10, 64)
	if err != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel id"})
		return
	}

	msgs, err := h.messages.ChannelHistory(c.Request.Context(), channelID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("failed to load channel messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, messagePayloads(msgs))
}

// DirectMessages returns the conversation between the caller and another user.
// GET /api/messages/direct/:userId
func (h *MessageHandlers) DirectMessages(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	otherID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	msgs, err := h.messages.DirectHistory(c.Request.Context(), uid, otherID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("receiver_id", otherID).Msg("failed to load direct messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, messagePayloads(msgs))
}

// SendChannelMessage persists a channel message and pushes it to online users.
// POST /api/messages
func (h *MessageHandlers) SendChannelMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendChannelMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.SendChannelMessage(c.Request.Context(), uid, req.ChannelID, req.Content)
	if err != nil {
		h.writeSendError(c, err, uid)
		return
	}

	c.JSON(http.StatusCreated, messagePayload(msg))
}

// SendDirectMessage persists a direct message and pushes it to both parties when online.
// POST /api/messages/direct
func (h *MessageHandlers) SendDirectMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendDirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send direct message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.SendDirectMessage(c.Request.Context(), uid, req.ReceiverID, req.Content)
	if err != nil {
		h.writeSendError(c, err, uid)
		return
	}

	c.JSON(http.StatusCreated, messagePayload(msg))
}

func (h *MessageHandlers) writeSendError(c *gin.Context, err error, uid int64) {
	switch {
	case errors.Is(err, messages.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content is required"})
	case errors.Is(err, messages.ErrContentTooLong):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content too long"})
	case errors.Is(err, messages.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message target"})
	case errors.Is(err, messages.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
	case errors.Is(err, messages.ErrReceiverNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "receiver not found"})
	default:
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
