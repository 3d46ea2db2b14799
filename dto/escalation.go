package dto

import "time"

type EscalationResponse struct {
	ID                   string     `json:"id"`
	MessageID            string     `json:"message_id"`
	Plate                string     `json:"plate"`
	Level                string     `json:"level"`
	Urgency              string     `json:"urgency"`
	EscalatedBy          string     `json:"escalated_by"`
	AuthorityContacted   bool       `json:"authority_contacted"`
	AuthorityContactedAt *time.Time `json:"authority_contacted_at,omitempty"`
	Resolved             bool       `json:"resolved"`
	Outcome              string     `json:"outcome,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

type ResolveEscalationRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=owner_responded owner_moved_car towed ticket_issued dismissed" example:"owner_moved_car"`
	Notes   string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (r ResolveEscalationRequest) Validate() error {
	return GetValidator().Struct(r)
}

type SweepResultResponse struct {
	Scanned   int       `json:"scanned"`
	Escalated int       `json:"escalated"`
	RanAt     time.Time `json:"ran_at"`
}
