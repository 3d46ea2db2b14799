package dto

import "time"

type SubmitReportRequest struct {
	MessageID string `json:"message_id" validate:"required" example:"0190c5a2-..."`
	Reason    string `json:"reason" validate:"required,oneof=spam harassment threat false_information other" example:"harassment"`
	Details   string `json:"details,omitempty" validate:"omitempty,max=2000"`
}

func (r SubmitReportRequest) Validate() error {
	return GetValidator().Struct(r)
}

type ReportResponse struct {
	ReportID       string `json:"report_id"`
	PenaltyApplied int    `json:"penalty_applied"`
	RepeatOffender bool   `json:"repeat_offender"`
	TargetBlocked  bool   `json:"target_blocked"`
}

type EvidenceUploadResponse struct {
	ReportID    string    `json:"report_id"`
	EvidenceURL string    `json:"evidence_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
