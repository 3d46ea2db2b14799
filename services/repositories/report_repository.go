package repositories

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/platevoice/plate_api/model"
	"gorm.io/gorm"
)

type ReportRepository struct {
	BaseRepository
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (r *ReportRepository) CreateReport(report *model.Report) (*model.Report, error) {
	id, _ := uuid.NewV7()
	report.ID = id.String()
	if err := r.db.Create(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}

func (r *ReportRepository) GetReport(reportID string) (*model.Report, error) {
	var report model.Report
	if err := r.db.Where("id = ?", reportID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// HasReport checks the (message, reporter) pair backing the duplicate rule.
// The unique index is the real guard; this gives a friendlier error before
// hitting it.
func (r *ReportRepository) HasReport(messageID, reporterID string) (bool, error) {
	var report model.Report
	err := r.db.Where("message_id = ? AND reporter_id = ?", messageID, reporterID).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ClearPenalty zeroes the recorded penalty on a report whose ledger write
// failed, so the audit row never claims a penalty that was not applied.
func (r *ReportRepository) ClearPenalty(reportID string) error {
	return r.db.Model(&model.Report{}).Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"penalty_applied": 0,
			"updated_at":      time.Now(),
		}).Error
}

func (r *ReportRepository) SetEvidenceKey(reportID, key string) error {
	res := r.db.Model(&model.Report{}).Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"evidence_key": key,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
