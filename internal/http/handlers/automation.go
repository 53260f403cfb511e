package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/scheduler"
)

// @Summary Process pending complaints
// @Description Runs one sweep over pending complaints on the automation lane
// @Tags automation
// @Produce json
// @Param max_items query int false "Batch size override"
// @Success 200 {object} scheduler.SweepResult
// @Failure 409 {object} map[string]any
// @Router /api/process [post]
func (h *Handler) Process(c *gin.Context) {
	maxItems := 0
	if v := c.Query("max_items"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "max_items must be a non-negative integer", v)
			return
		}
		maxItems = n
	}

	res := h.Automation.TriggerSweep(c.Request.Context(), maxItems)
	switch {
	case res.Skipped:
		writeError(c, http.StatusConflict, "ALREADY_RUNNING", "An automation pass is already running", res)
	case res.Error != "":
		h.Logger.Error().Str("error", res.Error).Msg("processing failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Processing failed", res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

type RebalanceRequest struct {
	Department string `json:"department"`
}

// @Summary Rebalance workload
// @Description Moves not-yet-started work from heavy to light staff. Deferred when a pass is running.
// @Tags automation
// @Accept json
// @Produce json
// @Param payload body RebalanceRequest false "Optional department filter"
// @Success 200 {object} scheduler.RebalanceOutcome
// @Success 202 {object} scheduler.RebalanceOutcome
// @Router /api/rebalance [post]
func (h *Handler) Rebalance(c *gin.Context) {
	var req RebalanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return
		}
	}
	dept, ok := departmentParam(c, req.Department)
	if !ok {
		return
	}

	out := h.Automation.TriggerRebalance(c.Request.Context(), dept)
	switch {
	case out.Deferred:
		c.JSON(http.StatusAccepted, out)
	case out.Error != "":
		writeError(c, http.StatusInternalServerError, "REBALANCE_ERROR", "Rebalance failed", out)
	default:
		c.JSON(http.StatusOK, out)
	}
}

// @Summary Scheduler status
// @Tags automation
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/scheduler/status [get]
func (h *Handler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  h.Automation.Status(),
		"history": h.Automation.History(),
	})
}

type runResponse struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Summary    json.RawMessage `json:"summary"`
}

// @Summary Latest run
// @Tags runs
// @Produce json
// @Param kind query string false "sweep or rebalance"
// @Success 200 {object} map[string]any
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	kind := c.Query("kind")
	if kind != "" && kind != scheduler.KindSweep && kind != scheduler.KindRebalance {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Unknown run kind", kind)
		return
	}
	run, err := h.Store.GetLatestRun(c.Request.Context(), kind)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load run", err.Error())
		return
	}
	resp := runResponse{
		ID:         run.ID,
		Kind:       run.Kind,
		Status:     run.Status,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if len(run.Summary) > 0 && json.Valid(run.Summary) {
		resp.Summary = run.Summary
	}
	c.JSON(http.StatusOK, resp)
}
