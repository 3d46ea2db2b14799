package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/shared"
)

type MessageHandler struct {
	messageSvc MessageServiceInterface
}

func NewMessageHandler(messageSvc MessageServiceInterface) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// @Summary Send a message to a plate
// @Description Send an anonymous message to a vehicle by license plate. Works for guests and authenticated users; quota differs.
// @Tags messages
// @Accept json
// @Produce json
// @Param messageRequest body dto.SendMessageRequest true "Message details"
// @Success 201 {object} shared.Response{data=dto.MessageResponse}
// @Failure 429 {object} shared.Response
// @Router /api/v1/messages [post]
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	senderID, _ := c.Locals(shared.UserID).(string)
	resp, err := h.messageSvc.SendMessage(c.Context(), req, senderID, c.IP())
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Message sent", resp)
}

// @Summary Inbox
// @Description List messages addressed to the authenticated owner's plates
// @Tags messages
// @Produce json
// @Security Bearer
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} shared.Response{data=dto.MessageListResponse}
// @Router /api/v1/messages [get]
func (h *MessageHandler) Inbox(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	resp, err := h.messageSvc.Inbox(userID, limit, offset)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Get a message
// @Description Fetch a single message. Plate owner or admin only.
// @Tags messages
// @Produce json
// @Security Bearer
// @Param id path string true "Message ID"
// @Success 200 {object} shared.Response{data=dto.MessageResponse}
// @Router /api/v1/messages/{id} [get]
func (h *MessageHandler) GetMessage(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	role, _ := c.Locals(shared.UserRole).(string)

	resp, err := h.messageSvc.GetMessage(c.Params("id"), userID, role)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Respond to a message
// @Description Record the owner's response, resolving the message and any open escalations
// @Tags messages
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Message ID"
// @Param respondRequest body dto.RespondMessageRequest true "Response"
// @Success 200 {object} shared.Response{data=dto.MessageResponse}
// @Router /api/v1/messages/{id}/respond [post]
func (h *MessageHandler) RespondToMessage(c *fiber.Ctx) error {
	var req dto.RespondMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	role, _ := c.Locals(shared.UserRole).(string)

	resp, err := h.messageSvc.RespondToMessage(c.Params("id"), userID, role, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Response recorded", resp)
}
