package handlers

import (
	"context"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
)

type AuthServiceInterface interface {
	Register(req dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(req dto.LoginRequest) (*dto.LoginResponse, error)
	RequiredAuth() fiber.Handler
	OptionalAuth() fiber.Handler
	RequireRole(role string) fiber.Handler
}

type IdentityServiceInterface interface {
	RegisterPlate(ctx context.Context, userID string, req dto.RegisterPlateRequest) (*dto.PlateResponse, error)
	ListPlates(userID string) (*dto.PlateListResponse, error)
}

type MessageServiceInterface interface {
	SendMessage(ctx context.Context, req dto.SendMessageRequest, senderID, senderIP string) (*dto.MessageResponse, error)
	Inbox(ownerID string, limit, offset int) (*dto.MessageListResponse, error)
	GetMessage(messageID, actorID, actorRole string) (*dto.MessageResponse, error)
	RespondToMessage(messageID, actorID, actorRole string, req dto.RespondMessageRequest) (*dto.MessageResponse, error)
}

type ReportServiceInterface interface {
	SubmitReport(reporterID string, req dto.SubmitReportRequest) (*dto.ReportResponse, error)
	GetReport(reportID, actorID, actorRole string) (*model.Report, error)
	UploadEvidence(reportID, actorID string, file *multipart.FileHeader) (*dto.EvidenceUploadResponse, error)
}

type TrustServiceInterface interface {
	GetState(userID string) (*dto.TrustStateResponse, error)
	History(userID string, limit int) (*dto.TrustHistoryResponse, error)
	AnalyzeRepeatOffender(userID string) (*dto.RepeatOffenderResponse, error)
	AdminAdjust(userID, adminID string, req dto.AdminTrustAdjustmentRequest) (*model.UserTrustState, error)
	AdminUnblock(userID, adminID string) error
}

type EscalationServiceInterface interface {
	EscalateMessage(messageID, actorID string) (*dto.EscalationResponse, error)
	ResolveEscalation(escalationID, actorID, actorRole string, req dto.ResolveEscalationRequest) (*dto.EscalationResponse, error)
	GetEscalationsByMessage(messageID string) ([]dto.EscalationResponse, error)
	RunAutoEscalationSweep() (*dto.SweepResultResponse, error)
}

type RateLimitServiceInterface interface {
	Inspect(ctx context.Context, policyName, identity string, authenticated bool) (*dto.RateLimitDecision, error)
	ResetRateLimit(ctx context.Context, policyName, identity string) error
	Degraded() bool
}
