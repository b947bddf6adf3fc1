package api

import (
	"errors"
	"net/http"
	"strconv"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/service"
	apperrors "ai-chat-app/backend/pkg/errors"
	"ai-chat-app/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the /chat endpoints
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{service: chatService}
}

// RegisterRoutes mounts the chat routes on an authenticated group. sendGuards
// run before SendMessage only.
func (h *ChatHandler) RegisterRoutes(group *gin.RouterGroup, sendGuards ...gin.HandlerFunc) {
	group.POST("/message", append(sendGuards, h.SendMessage)...)
	group.GET("/history", h.GetHistory)
	group.DELETE("/clear", h.ClearHistory)
	group.GET("/stats", h.Stats)
	group.GET("/health", h.Health)
	group.PUT("/title", h.UpdateTitle)
	group.PUT("/messages/:id", h.EditMessage)
	group.DELETE("/messages/:id", h.DeleteMessage)
}

func caller(c *gin.Context) service.Caller {
	id, _ := middleware.CurrentIdentity(c)
	return service.Caller{UserID: id.UserID, SessionID: id.SessionID}
}

// chatError maps service errors onto HTTP errors; storage failures get the
// operation's generic message.
func chatError(err error, storageMsg string) error {
	switch {
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrEmptyTitle):
		return apperrors.Validation(err.Error())
	case errors.Is(err, service.ErrMessageMissing), errors.Is(err, service.ErrChatMissing):
		return apperrors.NewNotFoundError(apperrors.CodeNotFound, err.Error())
	default:
		return apperrors.Storage(storageMsg, err)
	}
}

// SendMessage handles POST /chat/message
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Validation(service.ErrEmptyContent.Error()))
		return
	}

	resp, err := h.service.SendMessage(c.Request.Context(), caller(c), req)
	if err != nil {
		c.Error(chatError(err, "Error sending message"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory handles GET /chat/history?limit&offset
func (h *ChatHandler) GetHistory(c *gin.Context) {
	limit, err := intQuery(c, "limit", service.DefaultHistoryLimit)
	if err != nil || limit < 1 {
		c.Error(apperrors.Validation("limit must be a positive integer"))
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil || offset < 0 {
		c.Error(apperrors.Validation("offset must be a non-negative integer"))
		return
	}

	resp, err := h.service.GetHistory(c.Request.Context(), caller(c), limit, offset)
	if err != nil {
		c.Error(chatError(err, "Error retrieving chat history"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// ClearHistory handles DELETE /chat/clear
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	if err := h.service.ClearHistory(c.Request.Context(), caller(c)); err != nil {
		c.Error(chatError(err, "Error clearing chat history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat history cleared successfully"})
}

// Stats handles GET /chat/stats
func (h *ChatHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), caller(c))
	if err != nil {
		c.Error(chatError(err, "Error retrieving chat statistics"))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Health handles GET /chat/health. An unreachable provider is reported in
// the body, not as a failed request.
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health(c.Request.Context()))
}

// UpdateTitle handles PUT /chat/title
func (h *ChatHandler) UpdateTitle(c *gin.Context) {
	var req models.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Validation(service.ErrEmptyTitle.Error()))
		return
	}
	if err := h.service.UpdateTitle(c.Request.Context(), caller(c), req.Title); err != nil {
		c.Error(chatError(err, "Error updating chat title"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat title updated successfully"})
}

// EditMessage handles PUT /chat/messages/:id
func (h *ChatHandler) EditMessage(c *gin.Context) {
	var req models.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Validation(service.ErrEmptyContent.Error()))
		return
	}
	if err := h.service.EditMessage(c.Request.Context(), caller(c), c.Param("id"), req.Content); err != nil {
		c.Error(chatError(err, "Error editing message"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message updated successfully"})
}

// DeleteMessage handles DELETE /chat/messages/:id
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	if err := h.service.DeleteMessage(c.Request.Context(), caller(c), c.Param("id")); err != nil {
		c.Error(chatError(err, "Error deleting message"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
}
