package repositories

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platevoice/plate_api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles user, plate and reputation database operations
type UserRepository struct {
	BaseRepository
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (r *UserRepository) CreateUser(user *model.User) (*model.User, error) {
	id, _ := uuid.NewV7()
	user.ID = id.String()
	if err := r.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(userID string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetUserByEmailOrUsername(identifier string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ? OR username = ?", identifier, identifier).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateLastLogin(userID string) error {
	return r.db.Model(&model.User{}).Where("id = ?", userID).
		Update("last_login", time.Now()).Error
}

// ==================== PLATES ====================

func (r *UserRepository) CreatePlate(plate *model.Plate) (*model.Plate, error) {
	id, _ := uuid.NewV7()
	plate.ID = id.String()
	plate.Number = NormalizePlate(plate.Number)
	if err := r.db.Create(plate).Error; err != nil {
		return nil, err
	}
	return plate, nil
}

func (r *UserRepository) GetPlateByNumber(number string) (*model.Plate, error) {
	var plate model.Plate
	if err := r.db.Where("number = ?", NormalizePlate(number)).First(&plate).Error; err != nil {
		return nil, err
	}
	return &plate, nil
}

func (r *UserRepository) GetPlatesByOwner(ownerID string) ([]model.Plate, error) {
	var plates []model.Plate
	if err := r.db.Where("owner_id = ?", ownerID).Order("created_at asc").Find(&plates).Error; err != nil {
		return nil, err
	}
	return plates, nil
}

func (r *UserRepository) CountPlatesByOwner(ownerID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Plate{}).Where("owner_id = ?", ownerID).Count(&count).Error
	return count, err
}

// NormalizePlate strips separators and uppercases so "ab 12-34" and
// "AB1234" address the same vehicle.
func NormalizePlate(number string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(number))
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	return cleaned
}

// ==================== REPUTATION ====================

// IncrementEscalationsReceived bumps the owner's received counter with an
// atomic in-database increment, creating the row on first touch.
func (r *UserRepository) IncrementEscalationsReceived(userID string) error {
	return r.incrementReputation(userID, "escalations_received")
}

func (r *UserRepository) IncrementEscalationsResolved(userID string) error {
	return r.incrementReputation(userID, "escalations_resolved")
}

func (r *UserRepository) incrementReputation(userID, column string) error {
	now := time.Now()
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserReputation{
		UserID:    userID,
		UpdatedAt: now,
	}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	return r.db.Model(&model.UserReputation{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", 1),
			"updated_at": now,
		}).Error
}

func (r *UserRepository) GetReputation(userID string) (*model.UserReputation, error) {
	var rep model.UserReputation
	if err := r.db.Where("user_id = ?", userID).First(&rep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.UserReputation{UserID: userID}, nil
		}
		return nil, err
	}
	return &rep, nil
}
