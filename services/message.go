package services

import (
	"context"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

// MessageService owns the anonymous message lifecycle: moderation gate,
// blocked-sender check, persistence with the escalation deadline, and the
// owner-facing inbox.
type MessageService struct {
	appContext.DefaultService

	dbSvc           DBService
	messageRepo     *repositories.MessageRepository
	userRepo        *repositories.UserRepository
	trustSvc        *TrustScoreService
	moderationSvc   *ModerationService
	notificationSvc *NotificationService

	now func() time.Time
}

const MESSAGE_SVC = "message_svc"

// Flat penalty for AI-flagged content; the repeat-offender multiplier
// applies to report penalties only.
const aiModerationPenalty = 5

const moderationActor = "system-moderation"

func (svc MessageService) Id() string {
	return MESSAGE_SVC
}

func NewMessageService(messageRepo *repositories.MessageRepository, userRepo *repositories.UserRepository, trustSvc *TrustScoreService, moderationSvc *ModerationService) *MessageService {
	return &MessageService{
		messageRepo:   messageRepo,
		userRepo:      userRepo,
		trustSvc:      trustSvc,
		moderationSvc: moderationSvc,
		now:           time.Now,
	}
}

func (svc *MessageService) Configure(ctx *appContext.Context) error {
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *MessageService) Start() error {
	if UseSqlite() {
		svc.dbSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	} else {
		svc.dbSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	}
	svc.messageRepo = repositories.NewMessageRepository(svc.dbSvc.Db())
	svc.userRepo = repositories.NewUserRepository(svc.dbSvc.Db())
	svc.trustSvc = svc.Service(TRUST_SVC).(*TrustScoreService)
	svc.moderationSvc = svc.Service(MODERATION_SVC).(*ModerationService)
	svc.notificationSvc = svc.Service(NOTIFICATION_SVC).(*NotificationService)
	return nil
}

// SendMessage accepts a message for a plate. senderID is empty for guests.
// Blocked senders are rejected before moderation, blocked content before
// persistence; flagged content goes through with a trust penalty on the
// sender.
func (svc *MessageService) SendMessage(ctx context.Context, req dto.SendMessageRequest, senderID, senderIP string) (*dto.MessageResponse, error) {
	if senderID != "" {
		blocked, reason, err := svc.trustSvc.BlockInfo(senderID)
		if err != nil {
			return nil, err
		}
		if blocked {
			msg := "Account is blocked from sending messages"
			if reason != "" {
				msg = fmt.Sprintf("Account is blocked: %s", reason)
			}
			return nil, shared.NewAuthorizationError(msg)
		}
	}

	plate := repositories.NormalizePlate(req.Plate)
	if !dto.ValidPlate(plate) {
		return nil, shared.NewValidationError(nil, "Invalid plate format")
	}

	decision := svc.moderationSvc.ClassifyContent(ctx, req.Content)
	if decision.Action == ModerationBlock {
		recordModerationVerdict(ModerationBlock)
		return nil, shared.NewValidationError(nil, "Message content was rejected by moderation")
	}

	urgency := req.Urgency
	if urgency == "" {
		urgency = shared.UrgencyNormal
	}

	now := svc.now()
	message := &model.Message{
		Plate:              plate,
		SenderID:           senderID,
		SenderIP:           senderIP,
		SenderContact:      req.SenderContact,
		Content:            req.Content,
		Urgency:            urgency,
		EscalationDeadline: EscalationDeadlineFor(urgency, now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	message, err := svc.messageRepo.CreateMessage(message)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	if decision.Action == ModerationFlag {
		recordModerationVerdict(ModerationFlag)
		svc.penalizeFlaggedSender(senderID, message.ID, decision)
	}

	if svc.notificationSvc != nil {
		svc.notificationSvc.NotifyNewMessage(message)
	}
	recordMessageAccepted(urgency)

	return messageResponse(message), nil
}

// penalizeFlaggedSender applies the flat moderation penalty. Guests have no
// trust ledger; their flagged content is logged only.
func (svc *MessageService) penalizeFlaggedSender(senderID, messageID string, decision *ModerationDecision) {
	if senderID == "" {
		log.WithField("message_id", messageID).Info("Guest message flagged by moderation")
		return
	}

	_, err := svc.trustSvc.ApplyChange(TrustChange{
		UserID:         senderID,
		Change:         -aiModerationPenalty,
		Reason:         model.TrustReasonAIModeration,
		Details:        fmt.Sprintf("content flagged by moderation (%s)", decision.Category),
		RelatedMessage: messageID,
		PerformedBy:    moderationActor,
	})
	if err != nil {
		log.WithError(err).WithField("user_id", senderID).Warn("Failed to apply moderation penalty")
	}
}

// Inbox lists messages addressed to any of the owner's plates.
func (svc *MessageService) Inbox(ownerID string, limit, offset int) (*dto.MessageListResponse, error) {
	plates, err := svc.userRepo.GetPlatesByOwner(ownerID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}
	if len(plates) == 0 {
		return &dto.MessageListResponse{Messages: []dto.MessageResponse{}}, nil
	}

	numbers := make([]string, 0, len(plates))
	for _, p := range plates {
		numbers = append(numbers, p.Number)
	}

	messages, total, err := svc.messageRepo.GetMessagesByPlates(numbers, limit, offset)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	resp := &dto.MessageListResponse{
		Messages: make([]dto.MessageResponse, 0, len(messages)),
		Total:    total,
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, *messageResponse(&messages[i]))
	}
	return resp, nil
}

// GetMessage returns a single message to its plate owner or an admin.
func (svc *MessageService) GetMessage(messageID, actorID, actorRole string) (*dto.MessageResponse, error) {
	message, err := svc.messageRepo.GetMessage(messageID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	if actorRole != shared.RoleAdmin {
		if owner, _ := svc.plateOwner(message.Plate); owner == "" || owner != actorID {
			return nil, shared.NewAuthorizationError("Only the plate owner can view this message")
		}
	}

	return messageResponse(message), nil
}

// RespondToMessage records the owner's response, which resolves the message
// and closes any open escalations as owner_responded.
func (svc *MessageService) RespondToMessage(messageID, actorID, actorRole string, req dto.RespondMessageRequest) (*dto.MessageResponse, error) {
	message, err := svc.messageRepo.GetMessage(messageID)
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	ownerID, err := svc.plateOwner(message.Plate)
	if err != nil {
		return nil, err
	}
	if actorRole != shared.RoleAdmin && actorID != ownerID {
		return nil, shared.NewAuthorizationError("Only the plate owner can respond to this message")
	}
	if message.Resolved {
		return nil, shared.NewConflictError("Message is already resolved")
	}

	at := svc.now()
	if _, err := svc.messageRepo.MarkResponded(messageID, at); err != nil {
		return nil, svc.handleDBError(err)
	}
	if _, err := svc.messageRepo.ResolveMessage(messageID, at); err != nil {
		return nil, svc.handleDBError(err)
	}

	closed, err := svc.messageRepo.ResolveOpenEscalations(messageID, model.OutcomeOwnerResponded, at)
	if err != nil {
		log.WithError(err).WithField("message_id", messageID).Warn("Failed to close open escalations on response")
	}
	if closed > 0 && ownerID != "" {
		if err := svc.userRepo.IncrementEscalationsResolved(ownerID); err != nil {
			log.WithError(err).WithField("user_id", ownerID).Warn("Failed to update owner reputation")
		}
	}

	message.HasResponse = true
	message.Resolved = true
	message.ResolvedAt = &at

	log.WithFields(log.Fields{
		"message_id": messageID,
		"actor":      actorID,
	}).Info("Message responded and resolved")

	return messageResponse(message), nil
}

func (svc *MessageService) plateOwner(plate string) (string, error) {
	p, err := svc.userRepo.GetPlateByNumber(plate)
	if err != nil {
		if appErr, ok := shared.GetAppError(TranslateDBError(err)); ok && appErr.Kind == shared.KindNotFound {
			return "", nil
		}
		return "", svc.handleDBError(err)
	}
	return p.OwnerID, nil
}

func (svc *MessageService) handleDBError(err error) error {
	if svc.dbSvc != nil {
		return svc.dbSvc.HandleError(err)
	}
	return TranslateDBError(err)
}

func messageResponse(m *model.Message) *dto.MessageResponse {
	return &dto.MessageResponse{
		ID:                 m.ID,
		Plate:              m.Plate,
		Content:            m.Content,
		Urgency:            m.Urgency,
		Escalated:          m.Escalated,
		EscalationLevel:    string(m.EscalationLevel),
		EscalationDeadline: m.EscalationDeadline,
		HasResponse:        m.HasResponse,
		Resolved:           m.Resolved,
		ResolvedAt:         m.ResolvedAt,
		CreatedAt:          m.CreatedAt,
	}
}
