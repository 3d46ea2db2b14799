package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/shared"
)

type PlateHandler struct {
	identitySvc IdentityServiceInterface
}

func NewPlateHandler(identitySvc IdentityServiceInterface) *PlateHandler {
	return &PlateHandler{identitySvc: identitySvc}
}

// @Summary Register a plate
// @Description Claim a license plate for the authenticated account
// @Tags plates
// @Accept json
// @Produce json
// @Security Bearer
// @Param plateRequest body dto.RegisterPlateRequest true "Plate details"
// @Success 201 {object} shared.Response{data=dto.PlateResponse}
// @Router /api/v1/plates [post]
func (h *PlateHandler) RegisterPlate(c *fiber.Ctx) error {
	var req dto.RegisterPlateRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.identitySvc.RegisterPlate(c.Context(), userID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Plate registered successfully", resp)
}

// @Summary List my plates
// @Description List plates registered to the authenticated account
// @Tags plates
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.PlateListResponse}
// @Router /api/v1/plates [get]
func (h *PlateHandler) ListPlates(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	resp, err := h.identitySvc.ListPlates(userID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}
