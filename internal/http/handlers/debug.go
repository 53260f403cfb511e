package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/service"
)

type ClassifyRequest struct {
	Title       string   `json:"title" validate:"required_without=Description"`
	Description string   `json:"description"`
	Images      []string `json:"images" validate:"omitempty,max=10,dive,url"`
	AllowAI     *bool    `json:"allow_ai"`
}

// @Summary Debug classification
// @Description Classifies text without persisting anything
// @Tags debug
// @Accept json
// @Produce json
// @Param payload body ClassifyRequest true "Complaint content"
// @Success 200 {object} map[string]any
// @Router /api/debug/classify [post]
func (h *Handler) DebugClassify(c *gin.Context) {
	var req ClassifyRequest
	if !h.bind(c, &req) {
		return
	}
	allow := true
	if req.AllowAI != nil {
		allow = *req.AllowAI
	}
	res := h.Classifier.ClassifyWith(c.Request.Context(), service.ClassifyInput{
		Title:       req.Title,
		Description: req.Description,
		Images:      req.Images,
		AllowAI:     allow,
	})
	breakdown := h.Scorer.Breakdown(req.Title+" "+req.Description, res.Category)
	c.JSON(http.StatusOK, gin.H{
		"classification": res,
		"priority":       breakdown,
		"department":     h.Selector.Department(res.Category),
	})
}

// @Summary Debug selection
// @Description Ranks eligible staff for a complaint, or for an explicit category and priority
// @Tags debug
// @Produce json
// @Param complaint_id query string false "Complaint ID"
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Success 200 {object} service.SelectionResult
// @Router /api/debug/selection [get]
func (h *Handler) DebugSelection(c *gin.Context) {
	var category models.Category
	var priority models.Priority

	if id := c.Query("complaint_id"); id != "" {
		complaint, err := h.Store.GetComplaint(c.Request.Context(), id)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if complaint.Category == nil || complaint.Priority == nil {
			writeError(c, http.StatusConflict, "INVALID_STATE", "Complaint is not classified yet", id)
			return
		}
		category, priority = *complaint.Category, *complaint.Priority
	} else {
		var ok bool
		if category, ok = models.ParseCategory(c.Query("category")); !ok {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Unknown category", c.Query("category"))
			return
		}
		if priority, ok = models.ParsePriority(c.DefaultQuery("priority", string(models.PriorityMedium))); !ok {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Unknown priority", c.Query("priority"))
			return
		}
	}

	dept := h.Selector.Department(category)
	pool, err := h.Store.ListEligibleStaff(c.Request.Context(), dept)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load staff", err.Error())
		return
	}
	sel, _ := h.Selector.SelectBestStaff(category, priority, pool)
	c.JSON(http.StatusOK, sel)
}
