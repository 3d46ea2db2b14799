package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/shared"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()

	id, _ := uuid.NewV7()
	now := time.Now()
	user := &model.User{
		ID:        id.String(),
		Email:     username + "@test.local",
		Username:  username,
		Password:  "x",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedPlate(t *testing.T, db *gorm.DB, number, ownerID string) *model.Plate {
	t.Helper()

	id, _ := uuid.NewV7()
	now := time.Now()
	plate := &model.Plate{
		ID:        id.String(),
		Number:    number,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(plate).Error; err != nil {
		t.Fatalf("seed plate: %v", err)
	}
	return plate
}

func seedMessage(t *testing.T, db *gorm.DB, plate, urgency string, deadline time.Time) *model.Message {
	t.Helper()

	id, _ := uuid.NewV7()
	now := time.Now()
	message := &model.Message{
		ID:                 id.String(),
		Plate:              plate,
		Content:            "test message",
		Urgency:            urgency,
		EscalationDeadline: deadline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := db.Create(message).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return message
}

func mustAppError(t *testing.T, err error, kind string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	appErr, ok := shared.GetAppError(err)
	if !ok {
		t.Fatalf("expected AppError %s, got %T: %v", kind, err, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected error kind %s, got %s (%v)", kind, appErr.Kind, err)
	}
}
