package services

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

// ReportService turns user reports into trust penalties. The repeat
// offender multiplier is computed from the ledger as it stands before the
// new violation is written, so the doubled penalty starts with the
// violation after the one that crossed the threshold.
type ReportService struct {
	context.DefaultService

	dbSvc       DBService
	reportRepo  *repositories.ReportRepository
	messageRepo *repositories.MessageRepository
	trustSvc    *TrustScoreService
	minioSvc    *MinIOService
}

const REPORT_SVC = "report_svc"

const (
	baseReportPenalty = 10

	evidenceURLExpiry  = 24 * time.Hour
	evidenceMaxBytes   = 10 << 20
	evidenceKeyPattern = "reports/%s/%s%s"
)

func (svc ReportService) Id() string {
	return REPORT_SVC
}

func NewReportService(reportRepo *repositories.ReportRepository, messageRepo *repositories.MessageRepository, trustSvc *TrustScoreService) *ReportService {
	return &ReportService{
		reportRepo:  reportRepo,
		messageRepo: messageRepo,
		trustSvc:    trustSvc,
	}
}

func (svc *ReportService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *ReportService) Start() error {
	if UseSqlite() {
		svc.dbSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	} else {
		svc.dbSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	}
	svc.reportRepo = repositories.NewReportRepository(svc.dbSvc.Db())
	svc.messageRepo = repositories.NewMessageRepository(svc.dbSvc.Db())
	svc.trustSvc = svc.Service(TRUST_SVC).(*TrustScoreService)
	svc.minioSvc = svc.Service(MINIO_SVC).(*MinIOService)
	return nil
}

// SubmitReport files a report against a message's sender and applies the
// trust penalty. One report per (message, reporter); repeats get a
// conflict. Reports against guest messages are recorded without a penalty
// because there is no account to penalize.
func (svc *ReportService) SubmitReport(reporterID string, req dto.SubmitReportRequest) (*dto.ReportResponse, error) {
	message, err := svc.messageRepo.GetMessage(req.MessageID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	targetID := message.SenderID
	if targetID != "" && targetID == reporterID {
		return nil, shared.NewValidationError(nil, "You cannot report your own message")
	}

	exists, err := svc.reportRepo.HasReport(req.MessageID, reporterID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if exists {
		return nil, shared.NewConflictError("You have already reported this message")
	}

	penalty := 0
	multiplier := 1
	if targetID != "" {
		// Analysis runs before this report's ledger entry exists.
		multiplier = svc.trustSvc.PenaltyMultiplier(targetID)
		penalty = baseReportPenalty * multiplier
	}

	now := time.Now()
	report := &model.Report{
		MessageID:      req.MessageID,
		ReporterID:     reporterID,
		ReportedID:     targetID,
		Reason:         req.Reason,
		Details:        req.Details,
		PenaltyApplied: penalty,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	report, err = svc.reportRepo.CreateReport(report)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	resp := &dto.ReportResponse{
		ReportID:       report.ID,
		PenaltyApplied: penalty,
		RepeatOffender: multiplier > 1,
	}

	if targetID != "" {
		state, err := svc.trustSvc.ApplyChange(TrustChange{
			UserID:          targetID,
			Change:          -penalty,
			Reason:          model.TrustReasonReportReceived,
			Details:         fmt.Sprintf("reported for %s (x%d penalty)", req.Reason, multiplier),
			RelatedReportID: report.ID,
			RelatedMessage:  req.MessageID,
			PerformedBy:     reporterID,
		})
		if err != nil {
			// No ledger entry means no penalty was applied; the report row
			// must not claim one, and the caller gets the failure.
			if clearErr := svc.reportRepo.ClearPenalty(report.ID); clearErr != nil {
				log.WithError(clearErr).WithField("report_id", report.ID).Error("Failed to clear unapplied penalty")
			}
			return nil, err
		}
		resp.TargetBlocked = state.Blocked
	}

	recordReportFiled(req.Reason)

	log.WithFields(log.Fields{
		"report_id": report.ID,
		"reason":    req.Reason,
		"penalty":   penalty,
	}).Info("Report filed")

	return resp, nil
}

func (svc *ReportService) GetReport(reportID, actorID, actorRole string) (*model.Report, error) {
	report, err := svc.reportRepo.GetReport(reportID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if actorRole != shared.RoleAdmin && report.ReporterID != actorID {
		return nil, shared.NewAuthorizationError("Only the reporter or an admin can view this report")
	}
	return report, nil
}

// UploadEvidence attaches a file to an existing report and returns a
// short-lived presigned URL.
func (svc *ReportService) UploadEvidence(reportID, actorID string, file *multipart.FileHeader) (*dto.EvidenceUploadResponse, error) {
	report, err := svc.reportRepo.GetReport(reportID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if report.ReporterID != actorID {
		return nil, shared.NewAuthorizationError("Only the reporter can attach evidence")
	}

	if file.Size > evidenceMaxBytes {
		return nil, shared.NewValidationError(nil, "Evidence file exceeds the 10MB limit")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".mp4", ".pdf":
	default:
		return nil, shared.NewValidationError(nil, "Unsupported evidence file type")
	}

	src, err := file.Open()
	if err != nil {
		return nil, shared.NewValidationError(err, "Unable to read uploaded file")
	}
	defer src.Close()

	objectID, _ := uuid.NewV7()
	objectName := fmt.Sprintf(evidenceKeyPattern, reportID, objectID.String(), ext)

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := svc.minioSvc.UploadFile(objectName, src, file.Size, contentType); err != nil {
		return nil, shared.NewInternalError(err)
	}

	if err := svc.reportRepo.SetEvidenceKey(reportID, objectName); err != nil {
		return nil, svc.handleDBError(err)
	}

	url, err := svc.minioSvc.GetFileURL(objectName, evidenceURLExpiry)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	return &dto.EvidenceUploadResponse{
		ReportID:    reportID,
		EvidenceURL: url,
		ExpiresAt:   time.Now().Add(evidenceURLExpiry),
	}, nil
}

func (svc *ReportService) handleDBError(err error) error {
	if svc.dbSvc != nil {
		return svc.dbSvc.HandleError(err)
	}
	return TranslateDBError(err)
}
