package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/scheduler"
	"github.com/civic_complaints/backend/internal/service"
)

// Store is the read and write surface the handlers use directly.
type Store interface {
	service.Store
	GetLatestRun(ctx context.Context, kind string) (models.Run, error)
}

// Automation is the serialized lane that owns sweeps and rebalances.
type Automation interface {
	TriggerSweep(ctx context.Context, maxItems int) scheduler.SweepResult
	TriggerRebalance(ctx context.Context, dept *models.Department) scheduler.RebalanceOutcome
	Status() scheduler.Status
	History() []scheduler.RunRecord
}

type Handler struct {
	Store      Store
	Automation Automation
	Classifier *service.ContentClassifier
	Scorer     service.PriorityScorer
	Selector   service.AssignmentSelector
	Executor   *service.AssignmentExecutor
	Tiers      service.TierThresholds
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) tiers() service.TierThresholds {
	if h.Tiers.HeavyMax == 0 {
		return service.DefaultTierThresholds()
	}
	return h.Tiers
}

// bind decodes and validates a JSON body, writing the error response itself.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func departmentParam(c *gin.Context, value string) (*models.Department, bool) {
	if value == "" {
		return nil, true
	}
	d, ok := models.ParseDepartment(value)
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Unknown department", value)
		return nil, false
	}
	return &d, true
}

// writeDomainError maps store and executor errors onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(c, http.StatusConflict, "INVALID_STATE", "Complaint is closed", err.Error())
	case errors.Is(err, models.ErrAtCapacity):
		writeError(c, http.StatusConflict, "AT_CAPACITY", "Staff member at capacity", err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "Assignment changed concurrently", err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Internal error", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
