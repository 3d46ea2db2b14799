package services

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

// EscalationService drives the reminder -> authority -> towing ladder, both
// for manual escalations and the timed sweep over unanswered messages.
type EscalationService struct {
	context.DefaultService

	dbSvc           DBService
	messageRepo     *repositories.MessageRepository
	userRepo        *repositories.UserRepository
	notificationSvc *NotificationService

	sweepBatch int
	now        func() time.Time
	stop       chan struct{}
}

const ESCALATION_SVC = "escalation_svc"

const (
	defaultSweepBatch = 50
	sweepInterval     = time.Minute
)

func (svc EscalationService) Id() string {
	return ESCALATION_SVC
}

func NewEscalationService(messageRepo *repositories.MessageRepository, userRepo *repositories.UserRepository) *EscalationService {
	return &EscalationService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		sweepBatch:  defaultSweepBatch,
		now:         time.Now,
	}
}

func (svc *EscalationService) Configure(ctx *context.Context) error {
	svc.sweepBatch = defaultSweepBatch
	if v := os.Getenv("ESCALATION_SWEEP_BATCH"); v != "" {
		if batch, err := strconv.Atoi(v); err == nil && batch > 0 {
			svc.sweepBatch = batch
		}
	}
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *EscalationService) Start() error {
	if UseSqlite() {
		svc.dbSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	} else {
		svc.dbSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	}
	svc.messageRepo = repositories.NewMessageRepository(svc.dbSvc.Db())
	svc.userRepo = repositories.NewUserRepository(svc.dbSvc.Db())
	svc.notificationSvc = svc.Service(NOTIFICATION_SVC).(*NotificationService)

	svc.stop = make(chan struct{})
	go svc.sweepLoop()

	return nil
}

func (svc *EscalationService) Shutdown() {
	if svc.stop != nil {
		close(svc.stop)
	}
}

// Only urgent and emergency messages climb the ladder; normal messages keep
// their deadline for display but are never escalated.
var eligibleUrgencies = []string{shared.UrgencyUrgent, shared.UrgencyEmergency}

func escalationEligible(urgency string) bool {
	return urgency == shared.UrgencyUrgent || urgency == shared.UrgencyEmergency
}

// EscalationDeadlineFor maps urgency to the response window before the
// sweep escalates an unanswered message.
func EscalationDeadlineFor(urgency string, from time.Time) time.Time {
	switch urgency {
	case shared.UrgencyEmergency:
		return from.Add(1 * time.Hour)
	case shared.UrgencyUrgent:
		return from.Add(6 * time.Hour)
	default:
		return from.Add(24 * time.Hour)
	}
}

// EscalateMessage advances a message one ladder step on behalf of actorID.
// The transition is a conditional update keyed on the observed level, so a
// concurrent sweep or second caller gets a conflict instead of a double
// step.
func (svc *EscalationService) EscalateMessage(messageID, actorID string) (*dto.EscalationResponse, error) {
	message, err := svc.messageRepo.GetMessage(messageID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if message.Resolved {
		return nil, shared.NewConflictError("Message is already resolved")
	}
	if !escalationEligible(message.Urgency) {
		return nil, shared.NewValidationError(nil, "Message is not eligible for escalation")
	}

	nextLevel, err := model.NextEscalationLevel(message.EscalationLevel)
	if err != nil {
		return nil, err
	}

	at := svc.now()
	applied, err := svc.messageRepo.TransitionEscalation(messageID, message.EscalationLevel, nextLevel, at)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if !applied {
		return nil, shared.NewConflictError("Message escalation state changed concurrently, please retry")
	}

	escalation := &model.Escalation{
		MessageID:   messageID,
		Plate:       message.Plate,
		EscalatedBy: actorID,
		Level:       nextLevel,
		Urgency:     message.Urgency,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if nextLevel == model.EscalationLevelAuthorityNotified || nextLevel == model.EscalationLevelTowingRequested {
		escalation.AuthorityContacted = true
		escalation.AuthorityContactedAt = &at
	}

	escalation, err = svc.messageRepo.CreateEscalation(escalation)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	svc.bumpOwnerReceived(message.Plate)
	svc.notify(message, escalation)

	actorKind := "user"
	if actorID == shared.SystemAutoEscalation {
		actorKind = "system"
	}
	recordEscalation(string(nextLevel), actorKind)

	log.WithFields(log.Fields{
		"message_id": messageID,
		"level":      nextLevel,
		"actor":      actorID,
	}).Info("Message escalated")

	return escalationResponse(escalation), nil
}

// RunAutoEscalationSweep escalates one batch of overdue messages. Callable
// from the admin surface; the background loop runs it every minute. A
// message that gained a response or got escalated between the select and
// the transition is skipped by the conditional update, which makes the
// sweep idempotent.
func (svc *EscalationService) RunAutoEscalationSweep() (*dto.SweepResultResponse, error) {
	now := svc.now()
	overdue, err := svc.messageRepo.OverdueMessages(now, eligibleUrgencies, svc.sweepBatch)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	result := &dto.SweepResultResponse{
		Scanned: len(overdue),
		RanAt:   now,
	}

	for i := range overdue {
		message := &overdue[i]
		if _, err := svc.EscalateMessage(message.ID, shared.SystemAutoEscalation); err != nil {
			if appErr, ok := shared.GetAppError(err); ok && appErr.Kind == shared.KindConflict {
				continue
			}
			log.WithError(err).WithField("message_id", message.ID).Error("Sweep escalation failed")
			continue
		}
		result.Escalated++
	}

	if result.Escalated > 0 {
		log.WithFields(log.Fields{
			"scanned":   result.Scanned,
			"escalated": result.Escalated,
		}).Info("Auto escalation sweep completed")
	}
	return result, nil
}

func (svc *EscalationService) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := svc.RunAutoEscalationSweep(); err != nil {
				log.WithError(err).Error("Auto escalation sweep failed")
			}
		case <-svc.stop:
			return
		}
	}
}

// ResolveEscalation closes an escalation with an outcome. Only the plate
// owner or an admin may resolve. Every outcome resolves the underlying
// message as well; owner-action outcomes additionally count toward the
// owner's resolved reputation.
func (svc *EscalationService) ResolveEscalation(escalationID, actorID, actorRole string, req dto.ResolveEscalationRequest) (*dto.EscalationResponse, error) {
	outcome := model.EscalationOutcome(req.Outcome)
	if !outcome.Valid() {
		return nil, shared.NewValidationError(nil, "Invalid escalation outcome")
	}

	escalation, err := svc.messageRepo.GetEscalation(escalationID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if escalation.Resolved {
		return nil, shared.NewConflictError("Escalation is already resolved")
	}

	ownerID, err := svc.plateOwner(escalation.Plate)
	if err != nil {
		return nil, err
	}
	if actorRole != shared.RoleAdmin && actorID != ownerID {
		return nil, shared.NewAuthorizationError("Only the plate owner or an admin can resolve an escalation")
	}

	at := svc.now()
	applied, err := svc.messageRepo.ResolveEscalation(escalationID, outcome, at)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if !applied {
		return nil, shared.NewConflictError("Escalation is already resolved")
	}

	if _, err := svc.messageRepo.ResolveMessage(escalation.MessageID, at); err != nil {
		return nil, svc.handleDBError(err)
	}

	if outcome.OwnerAction() && ownerID != "" {
		if err := svc.userRepo.IncrementEscalationsResolved(ownerID); err != nil {
			log.WithError(err).WithField("user_id", ownerID).Warn("Failed to update owner reputation")
		}
	}

	escalation.Resolved = true
	escalation.ResolvedAt = &at
	escalation.Outcome = string(outcome)

	log.WithFields(log.Fields{
		"escalation_id": escalationID,
		"outcome":       outcome,
		"actor":         actorID,
	}).Info("Escalation resolved")

	return escalationResponse(escalation), nil
}

func (svc *EscalationService) GetEscalationsByMessage(messageID string) ([]dto.EscalationResponse, error) {
	escalations, err := svc.messageRepo.GetEscalationsByMessage(messageID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	out := make([]dto.EscalationResponse, 0, len(escalations))
	for i := range escalations {
		out = append(out, *escalationResponse(&escalations[i]))
	}
	return out, nil
}

func (svc *EscalationService) plateOwner(plate string) (string, error) {
	p, err := svc.userRepo.GetPlateByNumber(plate)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", svc.handleDBError(err)
	}
	return p.OwnerID, nil
}

func (svc *EscalationService) bumpOwnerReceived(plate string) {
	ownerID, err := svc.plateOwner(plate)
	if err != nil || ownerID == "" {
		return
	}
	if err := svc.userRepo.IncrementEscalationsReceived(ownerID); err != nil {
		log.WithError(err).WithField("user_id", ownerID).Warn("Failed to update owner reputation")
	}
}

func (svc *EscalationService) notify(message *model.Message, escalation *model.Escalation) {
	if svc.notificationSvc == nil {
		return
	}
	svc.notificationSvc.NotifyEscalation(message, escalation)
}

func (svc *EscalationService) handleDBError(err error) error {
	if svc.dbSvc != nil {
		return svc.dbSvc.HandleError(err)
	}
	return TranslateDBError(err)
}

func escalationResponse(e *model.Escalation) *dto.EscalationResponse {
	return &dto.EscalationResponse{
		ID:                   e.ID,
		MessageID:            e.MessageID,
		Plate:                e.Plate,
		Level:                string(e.Level),
		Urgency:              e.Urgency,
		EscalatedBy:          e.EscalatedBy,
		AuthorityContacted:   e.AuthorityContacted,
		AuthorityContactedAt: e.AuthorityContactedAt,
		Resolved:             e.Resolved,
		Outcome:              e.Outcome,
		CreatedAt:            e.CreatedAt,
	}
}
