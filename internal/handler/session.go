package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wooogler/swag/internal/model"
	"github.com/wooogler/swag/internal/store"
)

type SessionHandler struct {
	store *store.Store
}

func NewSessionHandler(st *store.Store) *SessionHandler {
	return &SessionHandler{store: st}
}

type StartSessionRequest struct {
	AssignmentID string `json:"assignmentId"`
	ShareToken   string `json:"shareToken"`
	StudentName  string `json:"studentName" binding:"required"`
	StudentEmail string `json:"studentEmail" binding:"required,email"`
}

// Start finds the student's session on the assignment or creates one.
func (h *SessionHandler) Start(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "studentName and a valid studentEmail are required"})
		return
	}

	ctx := c.Request.Context()
	var (
		assignment *model.Assignment
		err        error
	)
	switch {
	case req.AssignmentID != "":
		if _, perr := uuid.Parse(req.AssignmentID); perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assignment ID"})
			return
		}
		assignment, err = h.store.GetAssignment(ctx, req.AssignmentID)
	case strings.TrimSpace(req.ShareToken) != "":
		assignment, err = h.store.GetAssignmentByShareToken(ctx, strings.TrimSpace(req.ShareToken))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Assignment ID or share token is required"})
		return
	}
	if err != nil {
		respondStoreError(c, err)
		return
	}

	session, created, err := h.store.StartSession(ctx, assignment.ID, req.StudentName, req.StudentEmail)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"success":    true,
		"sessionId":  session.ID,
		"shareToken": assignment.ShareToken,
		"session":    session,
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	session, err := h.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
