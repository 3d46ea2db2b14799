package repositories

import (
	"time"

	"github.com/google/uuid"
	"github.com/platevoice/plate_api/model"
	"gorm.io/gorm"
)

// MessageRepository owns Message escalation fields and Escalation records.
type MessageRepository struct {
	BaseRepository
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (r *MessageRepository) CreateMessage(message *model.Message) (*model.Message, error) {
	id, _ := uuid.NewV7()
	message.ID = id.String()
	if err := r.db.Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

func (r *MessageRepository) GetMessage(messageID string) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("id = ?", messageID).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) GetMessagesByPlates(plates []string, limit, offset int) ([]model.Message, int64, error) {
	var messages []model.Message
	var total int64

	q := r.db.Model(&model.Message{}).Where("plate IN ?", plates)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// TransitionEscalation advances a message's escalation fields with a
// conditional update. fromLevel "" guards on escalated = false, so a sweep
// racing a manual escalate can never double-transition: exactly one writer
// sees RowsAffected == 1.
func (r *MessageRepository) TransitionEscalation(messageID string, fromLevel model.EscalationLevel, toLevel model.EscalationLevel, at time.Time) (bool, error) {
	q := r.db.Model(&model.Message{}).
		Where("id = ? AND resolved = ?", messageID, false)
	if fromLevel == model.EscalationLevelNone {
		q = q.Where("escalated = ?", false)
	} else {
		q = q.Where("escalation_level = ?", fromLevel)
	}

	res := q.Updates(map[string]interface{}{
		"escalated":        true,
		"escalated_at":     at,
		"escalation_level": toLevel,
		"updated_at":       at,
	})
	return res.RowsAffected > 0, res.Error
}

func (r *MessageRepository) MarkResponded(messageID string, at time.Time) (bool, error) {
	res := r.db.Model(&model.Message{}).
		Where("id = ? AND has_response = ?", messageID, false).
		Updates(map[string]interface{}{
			"has_response": true,
			"updated_at":   at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *MessageRepository) ResolveMessage(messageID string, at time.Time) (bool, error) {
	res := r.db.Model(&model.Message{}).
		Where("id = ? AND resolved = ?", messageID, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected > 0, res.Error
}

// OverdueMessages selects sweep candidates: past deadline, never escalated,
// unresolved, unanswered, escalation-eligible urgency. Bounded so one tick
// does bounded work; leftovers surface on the next tick.
func (r *MessageRepository) OverdueMessages(now time.Time, urgencies []string, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.
		Where("escalation_deadline <= ? AND escalated = ? AND resolved = ? AND has_response = ?",
			now, false, false, false).
		Where("urgency IN ?", urgencies).
		Order("escalation_deadline asc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ==================== ESCALATION RECORDS ====================

func (r *MessageRepository) CreateEscalation(escalation *model.Escalation) (*model.Escalation, error) {
	id, _ := uuid.NewV7()
	escalation.ID = id.String()
	if err := r.db.Create(escalation).Error; err != nil {
		return nil, err
	}
	return escalation, nil
}

func (r *MessageRepository) GetEscalation(escalationID string) (*model.Escalation, error) {
	var escalation model.Escalation
	if err := r.db.Where("id = ?", escalationID).First(&escalation).Error; err != nil {
		return nil, err
	}
	return &escalation, nil
}

func (r *MessageRepository) GetEscalationsByMessage(messageID string) ([]model.Escalation, error) {
	var escalations []model.Escalation
	err := r.db.Where("message_id = ?", messageID).
		Order("created_at asc").
		Find(&escalations).Error
	if err != nil {
		return nil, err
	}
	return escalations, nil
}

func (r *MessageRepository) ResolveEscalation(escalationID string, outcome model.EscalationOutcome, at time.Time) (bool, error) {
	res := r.db.Model(&model.Escalation{}).
		Where("id = ? AND resolved = ?", escalationID, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
			"outcome":     string(outcome),
			"updated_at":  at,
		})
	return res.RowsAffected > 0, res.Error
}

// ResolveOpenEscalations closes every unresolved escalation row for a
// message, used when an owner response resolves the whole thread.
func (r *MessageRepository) ResolveOpenEscalations(messageID string, outcome model.EscalationOutcome, at time.Time) (int64, error) {
	res := r.db.Model(&model.Escalation{}).
		Where("message_id = ? AND resolved = ?", messageID, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
			"outcome":     string(outcome),
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}
