package model

import "time"

type Report struct {
	ID          string `json:"id" gorm:"primaryKey"`
	MessageID   string `json:"message_id" gorm:"not null;uniqueIndex:idx_report_message_reporter,priority:1"`
	ReporterID  string `json:"reporter_id" gorm:"not null;uniqueIndex:idx_report_message_reporter,priority:2"`
	ReportedID  string `json:"reported_id" gorm:"index"`
	Reason      string `json:"reason" gorm:"not null;size:64"`
	Details     string `json:"details,omitempty" gorm:"type:text"`
	EvidenceKey string `json:"evidence_key,omitempty"`

	// PenaltyApplied is the final delta written to the ledger, multiplier
	// included, recorded for audit.
	PenaltyApplied int       `json:"penalty_applied" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"not null"`
}
