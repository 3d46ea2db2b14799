package dto

import "time"

type RegisterPlateRequest struct {
	Number  string `json:"number" validate:"required" example:"AB 1234 CD"`
	Country string `json:"country,omitempty" validate:"omitempty,len=2" example:"BG"`
}

func (r RegisterPlateRequest) Validate() error {
	return GetValidator().Struct(r)
}

type PlateResponse struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PlateListResponse struct {
	Plates []PlateResponse `json:"plates"`
}
