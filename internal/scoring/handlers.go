package scoring

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arjunrm/scamshield/internal/signal"
)

// Handler exposes classification over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates an HTTP handler for the scoring service.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scoring endpoints on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/classify", h.classify)
	r.GET("/assessments", h.listAssessments)
	r.GET("/assessments/stats", h.stats)
	r.GET("/assessments/:id", h.getAssessment)
}

// ClassifyRequest is the one-shot classification payload. Every field
// is optional but at least one signal must be supplied.
type ClassifyRequest struct {
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	Text            string     `json:"text,omitempty"`
	URL             string     `json:"url,omitempty"`
	DurationSeconds *int       `json:"durationSeconds,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	AmountMentioned *float64   `json:"amountMentioned,omitempty"`
}

// SignalSet converts the request into the analyzer input set.
func (req *ClassifyRequest) SignalSet() *signal.Set {
	set := &signal.Set{}
	if req.PhoneNumber != "" {
		set.Phone = &signal.PhoneSignal{Number: req.PhoneNumber}
	}
	if req.Text != "" || req.URL != "" {
		set.Content = &signal.ContentSignal{Text: req.Text, URL: req.URL}
	}
	if req.DurationSeconds != nil || req.StartedAt != nil {
		cp := &signal.CallPatternSignal{}
		if req.DurationSeconds != nil {
			cp.DurationSeconds = *req.DurationSeconds
		}
		if req.StartedAt != nil {
			cp.StartedAt = *req.StartedAt
		}
		set.CallPattern = cp
	}
	if req.AmountMentioned != nil {
		set.Financial = &signal.FinancialSignal{Amount: *req.AmountMentioned}
	}
	return set
}

func (h *Handler) classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	assessment, err := h.svc.Classify(c.Request.Context(), c.GetString("authUserID"), "", req.SignalSet())
	if err != nil {
		if errors.Is(err, ErrNoSignal) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "no_signal",
				"message": "at least one signal (phoneNumber, text, url, call pattern, or amount) is required",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "classification_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, assessment)
}

func (h *Handler) getAssessment(c *gin.Context) {
	assessment, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "no assessment with that id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (h *Handler) listAssessments(c *gin.Context) {
	userID := c.GetString("authUserID")
	if userID == "" {
		userID = c.Query("userId")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_user",
			"message": "userId is required",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	assessments, next, err := h.svc.History(c.Request.Context(), userID, limit, c.Query("cursor"))
	if err != nil {
		if err.Error() == "invalid cursor" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "cursor is malformed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	resp := gin.H{"assessments": assessments, "count": len(assessments)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) stats(c *gin.Context) {
	counts, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"byTier": counts})
}
