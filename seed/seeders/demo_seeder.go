package seeders

import (
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/shared"
)

// DemoSeeder creates a demo owner with plates and a few messages, including
// an overdue urgent one so the escalation sweep has work on first run.
type DemoSeeder struct {
	db *gorm.DB
}

func NewDemoSeeder(db *gorm.DB) *DemoSeeder {
	return &DemoSeeder{db: db}
}

func (s *DemoSeeder) SeedDemoData() error {
	var existing model.User
	if err := s.db.Where("username = ?", "demo_owner").First(&existing).Error; err == nil {
		log.Println("Demo data already exists, skipping demo seeding")
		return nil
	}

	now := time.Now()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("demo1234"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ownerID, _ := uuid.NewV7()
	owner := model.User{
		ID:        ownerID.String(),
		Email:     "demo@platevoice.local",
		Username:  "demo_owner",
		Password:  string(hashedPassword),
		Role:      shared.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Create(&owner).Error; err != nil {
		return err
	}

	plates := []model.Plate{
		{Number: "CA1234AB", Country: "BG", OwnerID: owner.ID},
		{Number: "B7777HP", Country: "BG", OwnerID: owner.ID},
	}
	for i := range plates {
		id, _ := uuid.NewV7()
		plates[i].ID = id.String()
		plates[i].CreatedAt = now
		plates[i].UpdatedAt = now
		if err := s.db.Create(&plates[i]).Error; err != nil {
			return err
		}
	}

	messages := []model.Message{
		{
			Plate:              "CA1234AB",
			Content:            "Your headlights are still on.",
			Urgency:            shared.UrgencyNormal,
			EscalationDeadline: now.Add(24 * time.Hour),
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			// Overdue urgent message, eligible for the sweep immediately.
			Plate:              "B7777HP",
			Content:            "Your car is blocking the garage exit, please move it.",
			Urgency:            shared.UrgencyUrgent,
			EscalationDeadline: now.Add(-time.Hour),
			CreatedAt:          now.Add(-7 * time.Hour),
			UpdatedAt:          now.Add(-7 * time.Hour),
		},
	}
	for i := range messages {
		id, _ := uuid.NewV7()
		messages[i].ID = id.String()
		if err := s.db.Create(&messages[i]).Error; err != nil {
			return err
		}
	}

	log.Printf("Created demo owner %s with %d plates and %d messages (password: demo1234)",
		owner.Username, len(plates), len(messages))
	return nil
}
