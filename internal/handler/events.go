package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wooogler/swag/internal/cache"
	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/middleware"
	"github.com/wooogler/swag/internal/store"
)

type EventsHandler struct {
	store *store.Store
	cache *cache.RedisCache
}

func NewEventsHandler(st *store.Store, rc *cache.RedisCache) *EventsHandler {
	return &EventsHandler{store: st, cache: rc}
}

type SaveEventsRequest struct {
	SessionID string         `json:"sessionId"`
	Events    []event.Record `json:"events"`
}

type SubmissionsRequest struct {
	SessionID string `json:"sessionId"`
}

// Save appends a batch of editor events. Empty batches succeed without
// touching the database so the tracker's unload flush is always cheap.
func (h *EventsHandler) Save(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "savedCount": 0})
		return
	}

	var req SaveEventsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "savedCount": 0})
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}
	for _, e := range req.Events {
		if !e.Type.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event type: " + string(e.Type)})
			return
		}
	}

	res, err := h.store.AppendEvents(c.Request.Context(), req.SessionID, req.Events)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			middleware.RecordEventSaveFailure("not_found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		middleware.RecordEventSaveFailure("db")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save events"})
		return
	}

	for _, e := range req.Events {
		middleware.RecordEventSaved(string(e.Type))
	}
	if dup := res.Duplicates(); dup > 0 {
		middleware.RecordDuplicateEvents(dup)
	}

	invalidateReplay(c.Request.Context(), h.cache, req.SessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "savedCount": res.Saved})
}

// Submissions lists a session's submitted documents in sequence order.
func (h *EventsHandler) Submissions(c *gin.Context) {
	var req SubmissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetSession(ctx, req.SessionID); err != nil {
		respondStoreError(c, err)
		return
	}

	rows, err := h.store.ListSubmissions(ctx, req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch submissions"})
		return
	}

	submissions := make([]event.Record, 0, len(rows))
	for _, r := range rows {
		submissions = append(submissions, r.Record())
	}
	c.JSON(http.StatusOK, gin.H{"submissions": submissions})
}

func invalidateReplay(ctx context.Context, rc *cache.RedisCache, sessionID string) {
	if rc == nil {
		return
	}
	if err := rc.Delete(ctx, cache.ReplayKey(sessionID)); err != nil {
		log.Printf("[Replay] Failed to invalidate cache for %s: %v", sessionID, err)
	}
}

// respondStoreError maps store sentinel errors to HTTP responses.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, store.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, store.ErrAssignmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Assignment not found"})
	case errors.Is(err, store.ErrInvalidTitle), errors.Is(err, store.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[Handler] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
