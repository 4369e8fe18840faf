package session

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arjunrm/scamshield/internal/validation"
)

// Handler exposes live call sessions over HTTP.
type Handler struct {
	mgr *Manager
}

// NewHandler creates an HTTP handler for the session manager.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// RegisterRoutes mounts the session endpoints on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.startSession)
	r.GET("/sessions", h.listSessions)
	r.GET("/sessions/:id", h.getSession)
	r.POST("/sessions/:id/fragments", h.addFragment)
	r.POST("/sessions/:id/end", h.endSession)
	r.GET("/alerts", h.listAlerts)
	r.POST("/alerts/:id/ack", h.ackAlert)
}

type startSessionRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

func (h *Handler) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if !validation.IsValidPhoneNumber(req.PhoneNumber) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_phone",
			"message": "phoneNumber must be a phone number (optional +, 4-15 digits)",
		})
		return
	}

	sess, err := h.mgr.Start(c.Request.Context(), c.GetString("authUserID"), req.PhoneNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type fragmentRequest struct {
	Text            string   `json:"text" binding:"required"`
	AmountMentioned *float64 `json:"amountMentioned,omitempty"`
}

func (h *Handler) addFragment(c *gin.Context) {
	var req fragmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("text", req.Text, validation.MaxTranscriptLength),
		validation.PositiveAmount("amountMentioned", req.AmountMentioned),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	result, err := h.mgr.AddFragment(c.Request.Context(), c.Param("id"), req.Text, req.AmountMentioned)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) endSession(c *gin.Context) {
	sess, err := h.mgr.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.mgr.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) listSessions(c *gin.Context) {
	userID := c.GetString("authUserID")
	if userID == "" {
		userID = c.Query("userId")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_user", "message": "userId is required"})
		return
	}

	store := h.mgr.store
	if store == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []*Session{}, "count": 0})
		return
	}
	sessions, err := store.ListByUser(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (h *Handler) listAlerts(c *gin.Context) {
	userID := c.GetString("authUserID")
	if userID == "" {
		userID = c.Query("userId")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_user", "message": "userId is required"})
		return
	}

	store := h.mgr.store
	if store == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []*Alert{}, "count": 0})
		return
	}
	alerts, err := store.ListAlerts(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) ackAlert(c *gin.Context) {
	store := h.mgr.store
	if store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no alert with that id"})
		return
	}
	if err := store.AcknowledgeAlert(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no alert with that id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ack_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "no session with that id",
		})
	case errors.Is(err, ErrAlreadyEnded):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "session_ended",
			"message": "session has already ended",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "session_error",
			"message": err.Error(),
		})
	}
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit
}
