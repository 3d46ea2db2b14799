package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/shared"
)

func requestIdentity(c *fiber.Ctx) (string, bool) {
	if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
		return userID, true
	}
	return shared.NormalizeIP(c.IP()), false
}

type RateLimitHandler struct {
	rateLimitSvc RateLimitServiceInterface
}

func NewRateLimitHandler(rateLimitSvc RateLimitServiceInterface) *RateLimitHandler {
	return &RateLimitHandler{rateLimitSvc: rateLimitSvc}
}

// @Summary Check rate limit
// @Description Report the caller's current window for a policy without consuming quota
// @Tags rate-limit
// @Produce json
// @Param policy path string true "Policy name" default(message)
// @Success 200 {object} shared.Response{data=dto.RateLimitDecision}
// @Router /api/v1/rate-limit/{policy} [get]
func (h *RateLimitHandler) CheckRateLimit(c *fiber.Ctx) error {
	identity, authenticated := requestIdentity(c)

	resp, err := h.rateLimitSvc.Inspect(c.Context(), c.Params("policy"), identity, authenticated)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Rate limiter status
// @Description Whether the limiter runs on the shared store or the in-process fallback
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=map[string]interface{}}
// @Router /api/v1/admin/rate-limit/status [get]
func (h *RateLimitHandler) Status(c *fiber.Ctx) error {
	store := "shared"
	if h.rateLimitSvc.Degraded() {
		store = "fallback"
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", fiber.Map{
		"store":    store,
		"degraded": h.rateLimitSvc.Degraded(),
	})
}

// @Summary Reset a rate limit counter
// @Tags admin
// @Produce json
// @Security Bearer
// @Param policy path string true "Policy name"
// @Param identity path string true "User ID or IP"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/admin/rate-limit/{policy}/{identity} [delete]
func (h *RateLimitHandler) ResetRateLimit(c *fiber.Ctx) error {
	if err := h.rateLimitSvc.ResetRateLimit(c.Context(), c.Params("policy"), c.Params("identity")); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Counter reset", nil)
}
