package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/service"
)

// @Summary Complaint details
// @Description Complaint with its assignment audit trail
// @Tags complaints
// @Produce json
// @Param id path string true "Complaint ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/complaints/{id} [get]
func (h *Handler) ComplaintDetails(c *gin.Context) {
	id := c.Param("id")
	complaint, err := h.Store.GetComplaint(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	audit, err := h.Store.ListAudit(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load audit trail", err.Error())
		return
	}
	if audit == nil {
		audit = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"complaint": complaint, "audit": audit})
}

type AssignRequest struct {
	StaffID  string `json:"staff_id" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Reason   string `json:"reason" validate:"required,min=3,max=500"`
	// EnforceCapacity makes the operator respect max workload like automation does.
	EnforceCapacity bool `json:"enforce_capacity"`
}

// @Summary Assign or reassign a complaint
// @Description Operator assignment. Capacity is not enforced unless requested.
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param payload body AssignRequest true "Assignment"
// @Success 200 {object} models.AssignmentDecision
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/complaints/{id}/assign [post]
func (h *Handler) Assign(c *gin.Context) {
	id := c.Param("id")
	var req AssignRequest
	if !h.bind(c, &req) {
		return
	}

	staff, err := h.Store.GetStaff(c.Request.Context(), req.StaffID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !staff.Active {
		writeError(c, http.StatusConflict, "INVALID_STATE", "Staff member is inactive", staff.ID)
		return
	}

	operator := req.Operator
	decision, err := h.Executor.Assign(c.Request.Context(), service.AssignRequest{
		ComplaintID:     id,
		StaffID:         req.StaffID,
		Operator:        &operator,
		Reason:          req.Reason,
		EnforceCapacity: req.EnforceCapacity,
		Details: map[string]any{
			"manual":     true,
			"department": string(staff.Department),
		},
	})
	if err != nil {
		h.Logger.Warn().Err(err).Str("complaint_id", id).Str("staff_id", req.StaffID).Msg("manual assignment rejected")
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type staffView struct {
	models.StaffMember
	Tier models.WorkloadTier `json:"tier"`
}

// @Summary Staff list
// @Description Active staff with live workload and tier
// @Tags staff
// @Produce json
// @Param department query string false "Department filter"
// @Success 200 {array} map[string]any
// @Router /api/staff [get]
func (h *Handler) StaffList(c *gin.Context) {
	dept, ok := departmentParam(c, c.Query("department"))
	if !ok {
		return
	}
	staff, err := h.Store.ListStaff(c.Request.Context(), dept)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load staff", err.Error())
		return
	}
	tiers := h.tiers()
	out := make([]staffView, 0, len(staff))
	for _, m := range staff {
		out = append(out, staffView{StaffMember: m, Tier: tiers.TierFor(m.ActiveAssignments)})
	}
	c.JSON(http.StatusOK, out)
}
