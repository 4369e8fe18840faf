package voice

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes voiceprint enrollment and matching over HTTP.
type Handler struct {
	matcher *Matcher
	store   Store
	events  EventSink
}

// EventSink receives scammer detections for fanout to subscribers.
// Implementations must not block.
type EventSink interface {
	ScammerDetected(userID, fingerprintID string, similarity float64)
}

// NewHandler creates an HTTP handler for the voice matcher.
func NewHandler(matcher *Matcher, store Store) *Handler {
	return &Handler{matcher: matcher, store: store}
}

// WithEvents sets the detection event sink.
func (h *Handler) WithEvents(sink EventSink) *Handler {
	h.events = sink
	return h
}

// RegisterRoutes mounts the voice endpoints on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/voice/fingerprints", h.register)
	r.POST("/voice/match", h.match)
	r.GET("/voice/fingerprints", h.list)
	r.GET("/voice/scammers", h.listScammers)
	r.POST("/voice/fingerprints/:id/scammer", h.setScammer)
	r.DELETE("/voice/fingerprints/:id", h.remove)
}

type registerRequest struct {
	Audio       string `json:"audio" binding:"required"` // base64-encoded sample
	PhoneNumber string `json:"phoneNumber,omitempty"`
	CallerName  string `json:"callerName,omitempty"`
	IsScammer   bool   `json:"isScammer,omitempty"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_audio", "message": "audio must be base64-encoded"})
		return
	}

	fp, err := h.matcher.Register(c.Request.Context(), RegisterParams{
		UserID:      c.GetString("authUserID"),
		PhoneNumber: req.PhoneNumber,
		CallerName:  req.CallerName,
		IsScammer:   req.IsScammer,
		Audio:       audio,
	})
	if err != nil {
		if errors.Is(err, ErrEmptyAudio) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_audio", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, fp)
}

type matchRequest struct {
	Audio string `json:"audio" binding:"required"` // base64-encoded sample
}

func (h *Handler) match(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_audio", "message": "audio must be base64-encoded"})
		return
	}

	result, err := h.matcher.Match(c.Request.Context(), audio)
	if err != nil {
		if errors.Is(err, ErrEmptyAudio) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_audio", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "match_failed", "message": err.Error()})
		return
	}

	if result.KnownScammer && h.events != nil {
		// Matches are sorted best-first; report the strongest flagged print.
		for _, m := range result.Matches {
			if m.Fingerprint != nil && m.Fingerprint.IsScammer {
				h.events.ScammerDetected(c.GetString("authUserID"), m.Fingerprint.ID, m.Similarity)
				break
			}
		}
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) list(c *gin.Context) {
	userID := c.GetString("authUserID")
	if userID == "" {
		userID = c.Query("userId")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_user", "message": "userId is required"})
		return
	}

	prints, err := h.store.ListByUser(c.Request.Context(), userID, limitQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fingerprints": prints, "count": len(prints)})
}

func (h *Handler) listScammers(c *gin.Context) {
	prints, err := h.store.ListScammers(c.Request.Context(), limitQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fingerprints": prints, "count": len(prints)})
}

type setScammerRequest struct {
	IsScammer *bool `json:"isScammer" binding:"required"`
}

func (h *Handler) setScammer(c *gin.Context) {
	var req setScammerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.store.SetScammer(c.Request.Context(), c.Param("id"), *req.IsScammer); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) storeError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no voiceprint with that id"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "voice_error", "message": err.Error()})
}

func limitQuery(c *gin.Context) int {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit
}
