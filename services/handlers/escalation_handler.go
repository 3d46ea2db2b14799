package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/shared"
)

type EscalationHandler struct {
	escalationSvc EscalationServiceInterface
}

func NewEscalationHandler(escalationSvc EscalationServiceInterface) *EscalationHandler {
	return &EscalationHandler{escalationSvc: escalationSvc}
}

// @Summary Escalate a message
// @Description Advance an unanswered message one step up the escalation ladder
// @Tags escalations
// @Produce json
// @Security Bearer
// @Param id path string true "Message ID"
// @Success 201 {object} shared.Response{data=dto.EscalationResponse}
// @Failure 409 {object} shared.Response
// @Router /api/v1/messages/{id}/escalate [post]
func (h *EscalationHandler) EscalateMessage(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	resp, err := h.escalationSvc.EscalateMessage(c.Params("id"), userID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Message escalated", resp)
}

// @Summary List escalations for a message
// @Tags escalations
// @Produce json
// @Security Bearer
// @Param id path string true "Message ID"
// @Success 200 {object} shared.Response{data=[]dto.EscalationResponse}
// @Router /api/v1/messages/{id}/escalations [get]
func (h *EscalationHandler) GetEscalationsByMessage(c *fiber.Ctx) error {
	resp, err := h.escalationSvc.GetEscalationsByMessage(c.Params("id"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Resolve an escalation
// @Description Close an escalation with an outcome. Plate owner or admin only.
// @Tags escalations
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Escalation ID"
// @Param resolveRequest body dto.ResolveEscalationRequest true "Outcome"
// @Success 200 {object} shared.Response{data=dto.EscalationResponse}
// @Router /api/v1/escalations/{id}/resolve [post]
func (h *EscalationHandler) ResolveEscalation(c *fiber.Ctx) error {
	var req dto.ResolveEscalationRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	role, _ := c.Locals(shared.UserRole).(string)

	resp, err := h.escalationSvc.ResolveEscalation(c.Params("id"), userID, role, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Escalation resolved", resp)
}

// @Summary Run the escalation sweep
// @Description Escalate one batch of overdue messages immediately
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.SweepResultResponse}
// @Router /api/v1/admin/escalations/sweep [post]
func (h *EscalationHandler) RunSweep(c *fiber.Ctx) error {
	resp, err := h.escalationSvc.RunAutoEscalationSweep()
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Sweep completed", resp)
}
