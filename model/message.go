package model

import (
	"time"

	"github.com/platevoice/plate_api/shared"
)

type EscalationLevel string

const (
	EscalationLevelNone              EscalationLevel = ""
	EscalationLevelReminderSent      EscalationLevel = "reminder_sent"
	EscalationLevelAuthorityNotified EscalationLevel = "authority_notified"
	EscalationLevelTowingRequested   EscalationLevel = "towing_requested"
)

// NextEscalationLevel advances the ladder none -> reminder_sent ->
// authority_notified -> towing_requested. The terminal level only leaves
// via resolution.
func NextEscalationLevel(level EscalationLevel) (EscalationLevel, error) {
	switch level {
	case EscalationLevelNone:
		return EscalationLevelReminderSent, nil
	case EscalationLevelReminderSent:
		return EscalationLevelAuthorityNotified, nil
	case EscalationLevelAuthorityNotified:
		return EscalationLevelTowingRequested, nil
	case EscalationLevelTowingRequested:
		return "", shared.NewConflictError("already at maximum level")
	default:
		return "", shared.NewValidationError(nil, "unknown escalation level")
	}
}

type EscalationOutcome string

const (
	OutcomeOwnerResponded EscalationOutcome = "owner_responded"
	OutcomeOwnerMovedCar  EscalationOutcome = "owner_moved_car"
	OutcomeTowed          EscalationOutcome = "towed"
	OutcomeTicketIssued   EscalationOutcome = "ticket_issued"
	OutcomeDismissed      EscalationOutcome = "dismissed"
)

func (o EscalationOutcome) Valid() bool {
	switch o {
	case OutcomeOwnerResponded, OutcomeOwnerMovedCar, OutcomeTowed, OutcomeTicketIssued, OutcomeDismissed:
		return true
	}
	return false
}

// OwnerAction reports whether the outcome reflects the owner acting on the
// message, which counts toward their resolved-escalations reputation.
func (o EscalationOutcome) OwnerAction() bool {
	return o == OutcomeOwnerResponded || o == OutcomeOwnerMovedCar
}

type Message struct {
	ID            string `json:"id" gorm:"primaryKey"`
	Plate         string `json:"plate" gorm:"not null;index;size:10"`
	SenderID      string `json:"sender_id,omitempty" gorm:"index"`
	SenderIP      string `json:"-" gorm:"size:45"`
	SenderContact string `json:"sender_contact,omitempty"`
	Content       string `json:"content" gorm:"type:text;not null"`
	Urgency       string `json:"urgency" gorm:"not null;size:10;default:normal"`

	Escalated          bool            `json:"escalated" gorm:"default:false;not null"`
	EscalatedAt        *time.Time      `json:"escalated_at,omitempty"`
	EscalationLevel    EscalationLevel `json:"escalation_level,omitempty" gorm:"size:32"`
	EscalationDeadline time.Time       `json:"escalation_deadline" gorm:"not null;index"`

	HasResponse bool       `json:"has_response" gorm:"default:false;not null"`
	Resolved    bool       `json:"resolved" gorm:"default:false;not null"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// Escalation records one reached level per message. The owning message
// carries the current level; these rows are the audit trail.
type Escalation struct {
	ID                   string          `json:"id" gorm:"primaryKey"`
	MessageID            string          `json:"message_id" gorm:"not null;index"`
	Plate                string          `json:"plate" gorm:"not null;size:10"`
	EscalatedBy          string          `json:"escalated_by" gorm:"not null"`
	Level                EscalationLevel `json:"level" gorm:"not null;size:32"`
	Urgency              string          `json:"urgency" gorm:"not null;size:10"`
	AuthorityContacted   bool            `json:"authority_contacted" gorm:"default:false;not null"`
	AuthorityContactedAt *time.Time      `json:"authority_contacted_at,omitempty"`
	Resolved             bool            `json:"resolved" gorm:"default:false;not null"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty"`
	Outcome              string          `json:"outcome,omitempty" gorm:"size:32"`
	CreatedAt            time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time       `json:"updated_at" gorm:"not null"`
}
