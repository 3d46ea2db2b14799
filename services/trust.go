package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

// TrustScoreService is the sole writer of trust state. Every score change
// goes through ApplyChange so the history ledger always explains the
// current score, and the auto-block rule is enforced in exactly one place.
type TrustScoreService struct {
	context.DefaultService

	dbSvc     DBService
	trustRepo *repositories.TrustRepository

	autoBlockThreshold int
	offenderWindow     time.Duration
}

// TrustChange is one requested ledger mutation.
type TrustChange struct {
	UserID          string
	Change          int
	Reason          model.TrustChangeReason
	Details         string
	RelatedReportID string
	RelatedMessage  string
	PerformedBy     string
}

const TRUST_SVC = "trust_svc"

const (
	defaultAutoBlockThreshold = 50
	offenderWindowDays        = 30
	offenderReportThreshold   = 3
	offenderAIThreshold       = 5
	offenderMultiplier        = 2

	// Bounded CAS retries; contention on a single user's score is rare.
	applyChangeAttempts = 3
)

func (svc TrustScoreService) Id() string {
	return TRUST_SVC
}

func NewTrustScoreService(trustRepo *repositories.TrustRepository) *TrustScoreService {
	return &TrustScoreService{
		trustRepo:          trustRepo,
		autoBlockThreshold: defaultAutoBlockThreshold,
		offenderWindow:     offenderWindowDays * 24 * time.Hour,
	}
}

func (svc *TrustScoreService) Configure(ctx *context.Context) error {
	svc.autoBlockThreshold = defaultAutoBlockThreshold
	if v := os.Getenv("TRUST_AUTO_BLOCK_THRESHOLD"); v != "" {
		if threshold, err := strconv.Atoi(v); err == nil && threshold >= model.TrustScoreMin && threshold <= model.TrustScoreMax {
			svc.autoBlockThreshold = threshold
		}
	}
	svc.offenderWindow = offenderWindowDays * 24 * time.Hour
	return svc.DefaultService.Configure(ctx)
}

func (svc *TrustScoreService) Start() error {
	if UseSqlite() {
		svc.dbSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	} else {
		svc.dbSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	}
	svc.trustRepo = repositories.NewTrustRepository(svc.dbSvc.Db())
	return nil
}

// ApplyChange applies one score delta with clamping, appends the history
// entry, and auto-blocks when the new score crosses the threshold. The
// update is an optimistic CAS on the previously read score so concurrent
// writers for the same user serialize without database locks.
func (svc *TrustScoreService) ApplyChange(change TrustChange) (*model.UserTrustState, error) {
	change.Reason.MustValidate()
	if change.PerformedBy == "" {
		return nil, shared.NewValidationError(nil, "performed_by is required")
	}

	for attempt := 0; attempt < applyChangeAttempts; attempt++ {
		state, err := svc.trustRepo.GetOrCreateState(change.UserID)
		if err != nil {
			return nil, svc.handleDBError(err)
		}

		prevScore := state.TrustScore
		newScore := model.ClampTrustScore(prevScore + change.Change)

		state.TrustScore = newScore
		if !state.Blocked && newScore < svc.autoBlockThreshold {
			now := time.Now()
			state.Blocked = true
			state.BlockedReason = fmt.Sprintf("trust score %d fell below threshold %d", newScore, svc.autoBlockThreshold)
			state.BlockedAt = &now
			log.WithFields(log.Fields{
				"user_id":     change.UserID,
				"trust_score": newScore,
			}).Warn("User auto-blocked on trust score")
		}

		entryID, _ := uuid.NewV7()
		entry := &model.TrustScoreHistoryEntry{
			ID:              entryID.String(),
			UserID:          change.UserID,
			PreviousScore:   prevScore,
			NewScore:        newScore,
			Change:          newScore - prevScore,
			Reason:          change.Reason,
			Details:         change.Details,
			RelatedReportID: change.RelatedReportID,
			RelatedMessage:  change.RelatedMessage,
			PerformedBy:     change.PerformedBy,
			CreatedAt:       time.Now(),
		}

		applied, err := svc.trustRepo.CommitChange(state, prevScore, entry)
		if err != nil {
			return nil, svc.handleDBError(err)
		}
		if applied {
			return state, nil
		}
	}

	return nil, shared.NewConflictError("Trust score is being updated concurrently, please retry")
}

func (svc *TrustScoreService) GetState(userID string) (*dto.TrustStateResponse, error) {
	state, err := svc.trustRepo.GetOrCreateState(userID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	return &dto.TrustStateResponse{
		UserID:        state.UserID,
		TrustScore:    state.TrustScore,
		Blocked:       state.Blocked,
		BlockedReason: state.BlockedReason,
		BlockedAt:     state.BlockedAt,
	}, nil
}

// IsBlocked is the cheap predicate the message path consults. Unknown users
// are trusted by default and not materialized.
func (svc *TrustScoreService) IsBlocked(userID string) (bool, error) {
	blocked, _, err := svc.BlockInfo(userID)
	return blocked, err
}

// BlockInfo also returns the block reason, surfaced verbatim to the blocked
// user on their next write attempt.
func (svc *TrustScoreService) BlockInfo(userID string) (bool, string, error) {
	state, err := svc.trustRepo.GetState(userID)
	if err != nil {
		if appErr, ok := shared.GetAppError(TranslateDBError(err)); ok && appErr.Kind == shared.KindNotFound {
			return false, "", nil
		}
		return false, "", svc.handleDBError(err)
	}
	return state.Blocked, state.BlockedReason, nil
}

func (svc *TrustScoreService) History(userID string, limit int) (*dto.TrustHistoryResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := svc.trustRepo.History(userID, limit)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	resp := &dto.TrustHistoryResponse{
		UserID:  userID,
		Entries: make([]dto.TrustHistoryEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.TrustHistoryEntryResponse{
			ID:            e.ID,
			PreviousScore: e.PreviousScore,
			NewScore:      e.NewScore,
			Change:        e.Change,
			Reason:        string(e.Reason),
			Details:       e.Details,
			PerformedBy:   e.PerformedBy,
			CreatedAt:     e.CreatedAt,
		})
	}
	return resp, nil
}

// AnalyzeRepeatOffender inspects the trailing 30 days of violations. The
// multiplier doubles report penalties once the user crosses either the
// report count or the moderation count threshold.
func (svc *TrustScoreService) AnalyzeRepeatOffender(userID string) (*dto.RepeatOffenderResponse, error) {
	since := time.Now().Add(-svc.offenderWindow)
	entries, err := svc.trustRepo.ViolationsSince(userID, since)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	resp := &dto.RepeatOffenderResponse{
		UserID:               userID,
		EscalationMultiplier: 1,
		RecentViolations:     make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		switch e.Reason {
		case model.TrustReasonReportReceived:
			resp.ReportCount++
		case model.TrustReasonAIModeration:
			resp.AIModerationCount++
		}
		resp.RecentViolations = append(resp.RecentViolations,
			fmt.Sprintf("%s: %s (%+d)", e.CreatedAt.Format(time.RFC3339), e.Reason, e.Change))
	}

	if resp.ReportCount >= offenderReportThreshold || resp.AIModerationCount >= offenderAIThreshold {
		resp.IsRepeatOffender = true
		resp.EscalationMultiplier = offenderMultiplier
	}
	return resp, nil
}

// PenaltyMultiplier is the write-path shortcut around AnalyzeRepeatOffender.
// Analysis runs before the triggering violation is recorded, so the
// escalated penalty starts with the violation after the one that crossed
// the threshold.
func (svc *TrustScoreService) PenaltyMultiplier(userID string) int {
	analysis, err := svc.AnalyzeRepeatOffender(userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Repeat offender analysis failed, using base penalty")
		return 1
	}
	return analysis.EscalationMultiplier
}

// ==================== ADMIN ====================

func (svc *TrustScoreService) AdminAdjust(userID, adminID string, req dto.AdminTrustAdjustmentRequest) (*model.UserTrustState, error) {
	return svc.ApplyChange(TrustChange{
		UserID:      userID,
		Change:      req.Change,
		Reason:      model.TrustReasonAdminAdjustment,
		Details:     req.Details,
		PerformedBy: adminID,
	})
}

// AdminUnblock lifts the sticky block. The score is left where it is; the
// admin can pair this with a positive adjustment when warranted.
func (svc *TrustScoreService) AdminUnblock(userID, adminID string) error {
	if err := svc.trustRepo.Unblock(userID); err != nil {
		if appErr, ok := shared.GetAppError(TranslateDBError(err)); ok && appErr.Kind == shared.KindNotFound {
			return shared.NewNotFoundError("User is not blocked")
		}
		return svc.handleDBError(err)
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"admin_id": adminID,
	}).Info("User unblocked by admin")
	return nil
}

func (svc *TrustScoreService) handleDBError(err error) error {
	if svc.dbSvc != nil {
		return svc.dbSvc.HandleError(err)
	}
	return TranslateDBError(err)
}
