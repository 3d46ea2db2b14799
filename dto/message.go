package dto

import "time"

type SendMessageRequest struct {
	Plate         string `json:"plate" validate:"required" example:"AB1234CD"`
	Content       string `json:"content" validate:"required,min=1,max=2000" example:"Your lights are on"`
	Urgency       string `json:"urgency" validate:"omitempty,oneof=normal urgent emergency" example:"urgent"`
	SenderContact string `json:"sender_contact,omitempty" validate:"omitempty,max=255"`
}

func (r SendMessageRequest) Validate() error {
	return GetValidator().Struct(r)
}

type MessageResponse struct {
	ID                 string     `json:"id"`
	Plate              string     `json:"plate"`
	Content            string     `json:"content"`
	Urgency            string     `json:"urgency"`
	Escalated          bool       `json:"escalated"`
	EscalationLevel    string     `json:"escalation_level,omitempty"`
	EscalationDeadline time.Time  `json:"escalation_deadline"`
	HasResponse        bool       `json:"has_response"`
	Resolved           bool       `json:"resolved"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int64             `json:"total"`
}

type RespondMessageRequest struct {
	Response string `json:"response" validate:"required,min=1,max=2000"`
}

func (r RespondMessageRequest) Validate() error {
	return GetValidator().Struct(r)
}
