package model

import (
	"fmt"
	"time"
)

const (
	TrustScoreMax     = 100
	TrustScoreMin     = 0
	TrustScoreInitial = 100
)

// TrustChangeReason is a closed enumeration. An unknown reason is a
// programming error, not a runtime condition.
type TrustChangeReason string

const (
	TrustReasonReportReceived  TrustChangeReason = "report_received"
	TrustReasonAIModeration    TrustChangeReason = "ai_moderation"
	TrustReasonAdminAdjustment TrustChangeReason = "admin_adjustment"
	TrustReasonAppealApproved  TrustChangeReason = "appeal_approved"
	TrustReasonTimeBonus       TrustChangeReason = "time_bonus"
	TrustReasonInitial         TrustChangeReason = "initial"
)

func (r TrustChangeReason) MustValidate() {
	switch r {
	case TrustReasonReportReceived, TrustReasonAIModeration, TrustReasonAdminAdjustment,
		TrustReasonAppealApproved, TrustReasonTimeBonus, TrustReasonInitial:
	default:
		panic(fmt.Sprintf("unknown trust change reason %q", string(r)))
	}
}

// UserTrustState is owned exclusively by the trust score service. The
// blocked flag is sticky: a recovering score never clears it, only an
// explicit admin unblock does.
type UserTrustState struct {
	UserID        string     `json:"user_id" gorm:"primaryKey"`
	TrustScore    int        `json:"trust_score" gorm:"default:100;not null"`
	Blocked       bool       `json:"blocked" gorm:"default:false;not null;index"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null"`
}

// TrustScoreHistoryEntry rows are append-only and never mutated. IDs are
// UUIDv7 so (created_at, id) gives a total per-user order.
type TrustScoreHistoryEntry struct {
	ID              string            `json:"id" gorm:"primaryKey"`
	UserID          string            `json:"user_id" gorm:"not null;index:idx_trust_history_user_time,priority:1"`
	PreviousScore   int               `json:"previous_score" gorm:"not null"`
	NewScore        int               `json:"new_score" gorm:"not null"`
	Change          int               `json:"change" gorm:"not null"`
	Reason          TrustChangeReason `json:"reason" gorm:"not null;size:32"`
	Details         string            `json:"details,omitempty" gorm:"type:text"`
	RelatedReportID string            `json:"related_report_id,omitempty"`
	RelatedMessage  string            `json:"related_message_id,omitempty" gorm:"column:related_message_id"`
	PerformedBy     string            `json:"performed_by" gorm:"not null"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;index:idx_trust_history_user_time,priority:2"`
}

func ClampTrustScore(score int) int {
	if score > TrustScoreMax {
		return TrustScoreMax
	}
	if score < TrustScoreMin {
		return TrustScoreMin
	}
	return score
}
