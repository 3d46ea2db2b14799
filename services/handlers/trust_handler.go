package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/shared"
)

type TrustHandler struct {
	trustSvc TrustServiceInterface
}

func NewTrustHandler(trustSvc TrustServiceInterface) *TrustHandler {
	return &TrustHandler{trustSvc: trustSvc}
}

// @Summary My trust state
// @Description Current trust score and block status for the authenticated user
// @Tags trust
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.TrustStateResponse}
// @Router /api/v1/trust [get]
func (h *TrustHandler) GetMyTrustState(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	resp, err := h.trustSvc.GetState(userID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary My trust history
// @Description Score change ledger for the authenticated user, newest first
// @Tags trust
// @Produce json
// @Security Bearer
// @Param limit query int false "Max entries" default(50)
// @Success 200 {object} shared.Response{data=dto.TrustHistoryResponse}
// @Router /api/v1/trust/history [get]
func (h *TrustHandler) GetMyTrustHistory(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	resp, err := h.trustSvc.History(userID, limit)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// ==================== ADMIN ====================

// @Summary Get a user's trust state
// @Tags admin
// @Produce json
// @Security Bearer
// @Param user_id path string true "User ID"
// @Success 200 {object} shared.Response{data=dto.TrustStateResponse}
// @Router /api/v1/admin/trust/{user_id} [get]
func (h *TrustHandler) AdminGetTrustState(c *fiber.Ctx) error {
	resp, err := h.trustSvc.GetState(c.Params("user_id"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Get a user's trust history
// @Tags admin
// @Produce json
// @Security Bearer
// @Param user_id path string true "User ID"
// @Param limit query int false "Max entries" default(50)
// @Success 200 {object} shared.Response{data=dto.TrustHistoryResponse}
// @Router /api/v1/admin/trust/{user_id}/history [get]
func (h *TrustHandler) AdminGetTrustHistory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	resp, err := h.trustSvc.History(c.Params("user_id"), limit)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Repeat offender analysis
// @Description Violation counts over the trailing 30 days and the active penalty multiplier
// @Tags admin
// @Produce json
// @Security Bearer
// @Param user_id path string true "User ID"
// @Success 200 {object} shared.Response{data=dto.RepeatOffenderResponse}
// @Router /api/v1/admin/trust/{user_id}/offender [get]
func (h *TrustHandler) AdminAnalyzeRepeatOffender(c *fiber.Ctx) error {
	resp, err := h.trustSvc.AnalyzeRepeatOffender(c.Params("user_id"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Adjust a user's trust score
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param user_id path string true "User ID"
// @Param adjustmentRequest body dto.AdminTrustAdjustmentRequest true "Adjustment"
// @Success 200 {object} shared.Response{data=model.UserTrustState}
// @Router /api/v1/admin/trust/{user_id}/adjust [post]
func (h *TrustHandler) AdminAdjustTrust(c *fiber.Ctx) error {
	var req dto.AdminTrustAdjustmentRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	adminID := c.Locals(shared.UserID).(string)
	resp, err := h.trustSvc.AdminAdjust(c.Params("user_id"), adminID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Trust score adjusted", resp)
}

// @Summary Unblock a user
// @Description Lift the sticky auto-block; the score is left unchanged
// @Tags admin
// @Produce json
// @Security Bearer
// @Param user_id path string true "User ID"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/admin/trust/{user_id}/unblock [post]
func (h *TrustHandler) AdminUnblock(c *fiber.Ctx) error {
	adminID := c.Locals(shared.UserID).(string)
	if err := h.trustSvc.AdminUnblock(c.Params("user_id"), adminID); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "User unblocked", nil)
}
