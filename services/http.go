package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bytedance/sonic"

	_ "github.com/platevoice/plate_api/docs"
	"github.com/platevoice/plate_api/services/handlers"
	"github.com/platevoice/plate_api/shared"
)

type HttpService struct {
	context.DefaultService

	authSvc       *AuthService
	identitySvc   *IdentityService
	messageSvc    *MessageService
	reportSvc     *ReportService
	trustSvc      *TrustScoreService
	escalationSvc *EscalationService
	rateLimitSvc  *RateLimitService
	monitoringSvc *MonitoringService

	port  int
	app   *fiber.App
	flood *rate.Limiter
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	// Coarse process-wide flood guard in front of the per-identity limiter.
	rps := 100.0
	if v := os.Getenv("HTTP_GLOBAL_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	svc.flood = rate.NewLimiter(rate.Limit(rps), int(rps*2))

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.identitySvc = svc.Service(IDENTITY_SVC).(*IdentityService)
	svc.messageSvc = svc.Service(MESSAGE_SVC).(*MessageService)
	svc.reportSvc = svc.Service(REPORT_SVC).(*ReportService)
	svc.trustSvc = svc.Service(TRUST_SVC).(*TrustScoreService)
	svc.escalationSvc = svc.Service(ESCALATION_SVC).(*EscalationService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.monitoringSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.app = fiber.New(fiber.Config{
		AppName:      SERVICE_NAME,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: svc.handleError,
	})

	svc.app.Use(recover.New())
	svc.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	svc.app.Use(svc.floodGuard)
	svc.app.Use(MonitoringMiddleware(svc.monitoringSvc))

	svc.registerRoutes()

	log.Printf("HTTP server listening on :%d", svc.port)
	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

func (svc *HttpService) registerRoutes() {
	authHandler := handlers.NewAuthHandler(svc.authSvc)
	plateHandler := handlers.NewPlateHandler(svc.identitySvc)
	messageHandler := handlers.NewMessageHandler(svc.messageSvc)
	reportHandler := handlers.NewReportHandler(svc.reportSvc)
	trustHandler := handlers.NewTrustHandler(svc.trustSvc)
	escalationHandler := handlers.NewEscalationHandler(svc.escalationSvc)
	rateLimitHandler := handlers.NewRateLimitHandler(svc.rateLimitSvc)

	svc.app.Get("/ping", svc.ping)
	svc.app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := svc.app.Group("/api/v1")
	v1.Get("/ping", svc.ping)

	v1.Post("/register", svc.rateLimitSvc.RateLimit("register"), authHandler.Register)
	v1.Post("/login", svc.rateLimitSvc.RateLimit("login"), authHandler.Login)

	v1.Post("/plates", svc.authSvc.RequiredAuth(), svc.rateLimitSvc.RateLimit("plate_create"), plateHandler.RegisterPlate)
	v1.Get("/plates", svc.authSvc.RequiredAuth(), plateHandler.ListPlates)

	v1.Post("/messages", svc.authSvc.OptionalAuth(), svc.rateLimitSvc.RateLimit("message"), messageHandler.SendMessage)
	v1.Get("/messages", svc.authSvc.RequiredAuth(), messageHandler.Inbox)
	v1.Get("/messages/:id", svc.authSvc.RequiredAuth(), messageHandler.GetMessage)
	v1.Post("/messages/:id/respond", svc.authSvc.RequiredAuth(), messageHandler.RespondToMessage)
	v1.Post("/messages/:id/escalate", svc.authSvc.RequiredAuth(), svc.rateLimitSvc.RateLimit("escalate"), escalationHandler.EscalateMessage)
	v1.Get("/messages/:id/escalations", svc.authSvc.RequiredAuth(), escalationHandler.GetEscalationsByMessage)

	v1.Post("/escalations/:id/resolve", svc.authSvc.RequiredAuth(), escalationHandler.ResolveEscalation)

	v1.Post("/reports", svc.authSvc.RequiredAuth(), svc.rateLimitSvc.RateLimit("report"), reportHandler.SubmitReport)
	v1.Get("/reports/:id", svc.authSvc.RequiredAuth(), reportHandler.GetReport)
	v1.Post("/reports/:id/evidence", svc.authSvc.RequiredAuth(), reportHandler.UploadEvidence)

	v1.Get("/trust", svc.authSvc.RequiredAuth(), trustHandler.GetMyTrustState)
	v1.Get("/trust/history", svc.authSvc.RequiredAuth(), trustHandler.GetMyTrustHistory)

	v1.Get("/rate-limit/:policy", svc.authSvc.OptionalAuth(), rateLimitHandler.CheckRateLimit)

	admin := v1.Group("/admin", svc.authSvc.RequiredAuth(), svc.authSvc.RequireRole(shared.RoleAdmin))
	admin.Get("/trust/:user_id", trustHandler.AdminGetTrustState)
	admin.Get("/trust/:user_id/history", trustHandler.AdminGetTrustHistory)
	admin.Get("/trust/:user_id/offender", trustHandler.AdminAnalyzeRepeatOffender)
	admin.Post("/trust/:user_id/adjust", trustHandler.AdminAdjustTrust)
	admin.Post("/trust/:user_id/unblock", trustHandler.AdminUnblock)
	admin.Post("/escalations/sweep", escalationHandler.RunSweep)
	admin.Get("/rate-limit/status", rateLimitHandler.Status)
	admin.Delete("/rate-limit/:policy/:identity", rateLimitHandler.ResetRateLimit)
}

func (svc *HttpService) floodGuard(c *fiber.Ctx) error {
	if !svc.flood.Allow() {
		return shared.NewRateLimitError("Service is busy, please try again shortly", 1)
	}
	return c.Next()
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")
	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("Unhandled error")
	return shared.ResponseJSON(c, fiber.StatusInternalServerError, "Internal Server Error", nil)
}
