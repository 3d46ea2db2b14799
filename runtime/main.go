package main

import (
	"os"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/platevoice/plate_api/services"
)

// @title PlateVoice API
// @version 1.0
// @description Anonymous license-plate messaging with trust scoring, rate limiting and escalations.
// @BasePath /
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	svcs := []context.Service{
		&services.RedisService{},
		&services.JWTService{},
		&services.NotificationService{},
		&services.ModerationService{},
		&services.MinIOService{},
		&services.MonitoringService{},
	}

	if services.UseSqlite() {
		svcs = append(svcs, &services.SqliteService{})
	} else {
		svcs = append(svcs, &services.PostgresService{})
	}

	svcs = append(svcs,
		&services.IdentityService{},
		&services.RateLimitService{},
		&services.TrustScoreService{},
		&services.EscalationService{},
		&services.MessageService{},
		&services.ReportService{},
		&services.AuthService{},

		&services.HttpService{},
	)

	ctx, err := context.NewCtx(svcs...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service context")
		return
	}

	if err = ctx.Run(); err != nil {
		log.Fatal().Err(err).Msg("Service context exited")
		os.Exit(1)
	}
}
