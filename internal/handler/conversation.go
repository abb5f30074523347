package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/wooogler/swag/internal/cache"
	"github.com/wooogler/swag/internal/store"
)

// ConversationHandler stores the chat side of a session. Generating the
// assistant's reply happens elsewhere; both sides arrive here as messages.
type ConversationHandler struct {
	store *store.Store
	cache *cache.RedisCache
}

func NewConversationHandler(st *store.Store, rc *cache.RedisCache) *ConversationHandler {
	return &ConversationHandler{store: st, cache: rc}
}

type CreateConversationRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Title     string `json:"title"`
}

type RenameConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

type AppendMessageRequest struct {
	Role      string          `json:"role" binding:"required"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata"`
	Timestamp int64           `json:"timestamp"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	conv, err := h.store.CreateConversation(c.Request.Context(), req.SessionID, req.Title)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	invalidateReplay(c.Request.Context(), h.cache, conv.SessionID)
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) Rename(c *gin.Context) {
	var req RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	conv, err := h.store.RenameConversation(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	invalidateReplay(c.Request.Context(), h.cache, conv.SessionID)
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	convs, err := h.store.ListConversations(c.Request.Context(), sessionID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.store.GetConversation(ctx, c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}

	msg := store.NewMessage{Role: req.Role, Content: req.Content}
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		msg.Metadata = datatypes.JSON(req.Metadata)
	}
	if req.Timestamp > 0 {
		msg.Timestamp = time.UnixMilli(req.Timestamp)
	}

	saved, err := h.store.AppendMessage(ctx, conv.ID, msg)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	invalidateReplay(ctx, h.cache, conv.SessionID)
	c.JSON(http.StatusCreated, saved)
}

func (h *ConversationHandler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.store.GetConversation(ctx, c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}

	msgs, err := h.store.ListMessages(ctx, conv.ID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
