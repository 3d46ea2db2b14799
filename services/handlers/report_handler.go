package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/shared"
)

type ReportHandler struct {
	reportSvc ReportServiceInterface
}

func NewReportHandler(reportSvc ReportServiceInterface) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

// @Summary Report a message
// @Description File a report against a message's sender. One report per message per reporter.
// @Tags reports
// @Accept json
// @Produce json
// @Security Bearer
// @Param reportRequest body dto.SubmitReportRequest true "Report details"
// @Success 201 {object} shared.Response{data=dto.ReportResponse}
// @Failure 409 {object} shared.Response
// @Router /api/v1/reports [post]
func (h *ReportHandler) SubmitReport(c *fiber.Ctx) error {
	var req dto.SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.reportSvc.SubmitReport(userID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Report filed", resp)
}

// @Summary Get a report
// @Description Fetch a report. Reporter or admin only.
// @Tags reports
// @Produce json
// @Security Bearer
// @Param id path string true "Report ID"
// @Success 200 {object} shared.Response{data=model.Report}
// @Router /api/v1/reports/{id} [get]
func (h *ReportHandler) GetReport(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	role, _ := c.Locals(shared.UserRole).(string)

	resp, err := h.reportSvc.GetReport(c.Params("id"), userID, role)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Upload report evidence
// @Description Attach an evidence file to a report. Reporter only.
// @Tags reports
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param id path string true "Report ID"
// @Param file formData file true "Evidence file"
// @Success 200 {object} shared.Response{data=dto.EvidenceUploadResponse}
// @Router /api/v1/reports/{id}/evidence [post]
func (h *ReportHandler) UploadEvidence(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.NewValidationError(err, "Evidence file is required")
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.reportSvc.UploadEvidence(c.Params("id"), userID, file)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Evidence uploaded", resp)
}
