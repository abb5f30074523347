package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wooogler/swag/internal/cache"
	"github.com/wooogler/swag/internal/idle"
	"github.com/wooogler/swag/internal/middleware"
	"github.com/wooogler/swag/internal/replay"
	"github.com/wooogler/swag/internal/store"
)

// ReplayHandler serves instructor views of a session. Every route requires
// InstructorAuth and answers 404 for sessions outside the instructor's
// assignments.
type ReplayHandler struct {
	store    *store.Store
	cache    *cache.RedisCache
	idle     idle.Config
	cacheTTL time.Duration
}

func NewReplayHandler(st *store.Store, rc *cache.RedisCache, idleCfg idle.Config, cacheTTL time.Duration) *ReplayHandler {
	return &ReplayHandler{store: st, cache: rc, idle: idleCfg, cacheTTL: cacheTTL}
}

func (h *ReplayHandler) Get(c *gin.Context) {
	data, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, data)
}

// Frame reconstructs the session at ?t=<unix ms>; without t it uses the
// start of the replay.
func (h *ReplayHandler) Frame(c *gin.Context) {
	data, ok := h.load(c)
	if !ok {
		return
	}

	t := data.StartTime
	if raw := c.Query("t"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "t must be a unix timestamp in milliseconds"})
			return
		}
		t = v
	}

	tl := data.Timeline()
	mapper := idle.NewMapper(h.idle, tl.Timestamps())
	frame := tl.FrameAt(t)

	resp := gin.H{
		"frame":    frame,
		"progress": mapper.Fraction(data.StartTime, data.EndTime, t),
	}
	if p, inIdle := mapper.InMiddle(t); inIdle {
		resp["idle"] = p
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReplayHandler) Summary(c *gin.Context) {
	data, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, replay.Summarize(data.Timeline(), len(data.Conversations)))
}

// load authorizes the instructor and returns the session's replay data,
// from the cache when possible. It writes the error response itself.
func (h *ReplayHandler) load(c *gin.Context) (*store.ReplayData, bool) {
	sessionID := c.Param("sessionId")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return nil, false
	}

	ctx := c.Request.Context()
	owns, err := h.store.InstructorOwnsSession(ctx, c.GetString(middleware.InstructorIDKey), sessionID)
	if err != nil {
		respondStoreError(c, err)
		return nil, false
	}
	if !owns {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}

	key := cache.ReplayKey(sessionID)
	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, key); err == nil {
			var data store.ReplayData
			if err := json.Unmarshal(cached, &data); err == nil {
				middleware.RecordReplayCache(true)
				return &data, true
			}
			log.Printf("[Replay] Discarding unreadable cache entry for %s", sessionID)
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Printf("[Replay] Cache read failed for %s: %v", sessionID, err)
		}
		middleware.RecordReplayCache(false)
	}

	start := time.Now()
	data, err := h.store.LoadReplay(ctx, sessionID, h.idle)
	if err != nil {
		respondStoreError(c, err)
		return nil, false
	}
	middleware.RecordReplayBuild(time.Since(start))

	if h.cache != nil {
		if b, err := json.Marshal(data); err == nil {
			if err := h.cache.Set(ctx, key, b, h.cacheTTL); err != nil {
				log.Printf("[Replay] Cache write failed for %s: %v", sessionID, err)
			}
		}
	}
	return data, true
}

// Delete removes the session with its events and chat history.
func (h *ReplayHandler) Delete(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	ctx := c.Request.Context()
	owns, err := h.store.InstructorOwnsSession(ctx, c.GetString(middleware.InstructorIDKey), sessionID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if !owns {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := h.store.DeleteSession(ctx, sessionID); err != nil {
		respondStoreError(c, err)
		return
	}
	invalidateReplay(ctx, h.cache, sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
