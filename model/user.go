package model

import "time"

type User struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Email     string `json:"email" gorm:"unique;not null"`
	Username  string `json:"username" gorm:"unique;not null"`
	Password  string `json:"-" gorm:"not null"`
	Role      string `json:"role" gorm:"default:user;not null;size:20"`
	Premium   bool   `json:"premium" gorm:"default:false;not null"`
	LastLogin time.Time
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// Plate is the addressing unit for messages. A user with at least one
// plate counts as registered for quota purposes.
type Plate struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Number    string    `json:"number" gorm:"uniqueIndex;not null;size:10"`
	Country   string    `json:"country" gorm:"size:2"`
	OwnerID   string    `json:"owner_id" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// UserReputation tracks escalation outcomes per owner. Kept separate from
// trust score: escalation results affect reputation, never trust.
type UserReputation struct {
	UserID              string    `json:"user_id" gorm:"primaryKey"`
	EscalationsReceived int       `json:"escalations_received" gorm:"default:0;not null"`
	EscalationsResolved int       `json:"escalations_resolved" gorm:"default:0;not null"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"not null"`
}
