package repositories

import (
	"time"

	"github.com/platevoice/plate_api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrustRepository is the only component that writes UserTrustState rows and
// TrustScoreHistoryEntry rows.
type TrustRepository struct {
	BaseRepository
}

func NewTrustRepository(db *gorm.DB) *TrustRepository {
	return &TrustRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// GetOrCreateState upserts the default trusted state for first-seen users.
// The OnConflict guard means two concurrent first writers both end up
// reading the single inserted row instead of racing the insert.
func (r *TrustRepository) GetOrCreateState(userID string) (*model.UserTrustState, error) {
	now := time.Now()
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserTrustState{
		UserID:     userID,
		TrustScore: model.TrustScoreInitial,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
	if err != nil {
		return nil, err
	}

	var state model.UserTrustState
	if err := r.db.Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *TrustRepository) GetState(userID string) (*model.UserTrustState, error) {
	var state model.UserTrustState
	if err := r.db.Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// CommitChange applies one ledger mutation atomically: a conditional update
// guarded on the previously observed score plus the history append, in one
// transaction. Returns false (and rolls back the append) when another
// writer moved the score first; the caller re-reads and retries.
func (r *TrustRepository) CommitChange(state *model.UserTrustState, prevScore int, entry *model.TrustScoreHistoryEntry) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.UserTrustState{}).
			Where("user_id = ? AND trust_score = ?", state.UserID, prevScore).
			Updates(map[string]interface{}{
				"trust_score":    state.TrustScore,
				"blocked":        state.Blocked,
				"blocked_reason": state.BlockedReason,
				"blocked_at":     state.BlockedAt,
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Create(entry).Error
	})
	return applied, err
}

// Unblock clears the sticky block flag. Only the admin surface calls this;
// the normal write path never un-blocks.
func (r *TrustRepository) Unblock(userID string) error {
	res := r.db.Model(&model.UserTrustState{}).
		Where("user_id = ? AND blocked = ?", userID, true).
		Updates(map[string]interface{}{
			"blocked":        false,
			"blocked_reason": "",
			"blocked_at":     nil,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// History returns entries newest-first. UUIDv7 ids break created_at ties so
// "most recent N" is deterministic.
func (r *TrustRepository) History(userID string, limit int) ([]model.TrustScoreHistoryEntry, error) {
	var entries []model.TrustScoreHistoryEntry
	q := r.db.Where("user_id = ?", userID).Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ViolationsSince returns report_received / ai_moderation entries in the
// trailing window, newest-first.
func (r *TrustRepository) ViolationsSince(userID string, since time.Time) ([]model.TrustScoreHistoryEntry, error) {
	var entries []model.TrustScoreHistoryEntry
	err := r.db.
		Where("user_id = ? AND created_at >= ? AND reason IN ?", userID, since,
			[]model.TrustChangeReason{model.TrustReasonReportReceived, model.TrustReasonAIModeration}).
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
