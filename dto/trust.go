package dto

import "time"

type TrustStateResponse struct {
	UserID        string     `json:"user_id"`
	TrustScore    int        `json:"trust_score"`
	Blocked       bool       `json:"blocked"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
}

type TrustHistoryEntryResponse struct {
	ID            string    `json:"id"`
	PreviousScore int       `json:"previous_score"`
	NewScore      int       `json:"new_score"`
	Change        int       `json:"change"`
	Reason        string    `json:"reason"`
	Details       string    `json:"details,omitempty"`
	PerformedBy   string    `json:"performed_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type TrustHistoryResponse struct {
	UserID  string                      `json:"user_id"`
	Entries []TrustHistoryEntryResponse `json:"entries"`
}

type RepeatOffenderResponse struct {
	UserID               string   `json:"user_id"`
	IsRepeatOffender     bool     `json:"is_repeat_offender"`
	ReportCount          int      `json:"report_count"`
	AIModerationCount    int      `json:"ai_moderation_count"`
	EscalationMultiplier int      `json:"escalation_multiplier"`
	RecentViolations     []string `json:"recent_violations"`
}

type AdminTrustAdjustmentRequest struct {
	Change  int    `json:"change" validate:"required" example:"-10"`
	Details string `json:"details" validate:"required,max=500"`
}

func (r AdminTrustAdjustmentRequest) Validate() error {
	return GetValidator().Struct(r)
}
