package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/shared"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PostgresService struct {
	appContext.DefaultService
	db *gorm.DB

	database      string
	retentionDays int
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *appContext.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		// Fallback to individual environment variables
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "plate_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		timezone := os.Getenv("DB_TIMEZONE")
		if timezone == "" {
			timezone = "UTC"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			host, user, password, dbname, port, sslmode, timezone)
	}

	ds.retentionDays = 365
	if v := os.Getenv("MESSAGE_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			ds.retentionDays = days
		}
	}

	return ds.DefaultService.Configure(ctx)
}

func (ds *PostgresService) Start() (err error) {
	// Retry connection with exponential backoff
	maxRetries := 10
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to database (attempt %d/%d)...", attempt, maxRetries)

		ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})

		if err == nil {
			sqlDB, dbErr := ds.db.DB()
			if dbErr == nil {
				pingErr := sqlDB.Ping()
				if pingErr == nil {
					log.Println("Successfully connected to database")
					break
				}
				err = pingErr
			} else {
				err = dbErr
			}
		}

		if attempt == maxRetries {
			log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
			return err
		}

		log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
		time.Sleep(retryDelay)

		retryDelay *= 2
		if retryDelay > 10*time.Second {
			retryDelay = 10 * time.Second
		}
	}

	err = ds.db.AutoMigrate(Models()...)
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		for range ticker.C {
			if err := ds.CleanupExpiredData(); err != nil {
				log.Printf("Failed to cleanup expired data: %v", err)
			}
		}
	}()

	log.Println("Database connected and migrated successfully")
	return nil
}

// Models is the full migration set, shared with the sqlite service and the
// test helpers.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Plate{},
		&model.UserReputation{},

		&model.Message{},
		&model.Escalation{},

		&model.UserTrustState{},
		&model.TrustScoreHistoryEntry{},

		&model.Report{},
	}
}

// CleanupExpiredData prunes resolved messages past retention. Trust history
// is append-only and never pruned.
func (ds *PostgresService) CleanupExpiredData() error {
	cutoff := time.Now().AddDate(0, 0, -ds.retentionDays)
	res := ds.db.Where("resolved = ? AND resolved_at < ?", true, cutoff).Delete(&model.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("Pruned %d resolved messages older than %d days", res.RowsAffected, ds.retentionDays)
	}
	return nil
}

func (ds *PostgresService) Shutdown() {
	sqlDB, err := ds.db.DB()
	if err == nil {
		sqlDB.Close()
	}
}

// HandleError translates gorm/postgres errors into the AppError taxonomy
// the HTTP layer renders.
func (ds *PostgresService) HandleError(err error) error {
	return TranslateDBError(err)
}

func TranslateDBError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := shared.GetAppError(err); ok {
		return appErr
	}

	var translated *shared.AppError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		translated = shared.NewNotFoundError("Not Found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		translated = shared.NewConflictError("Conflict")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		translated = shared.NewValidationError(err, "Invalid reference")
	case errors.Is(err, context.DeadlineExceeded):
		translated = shared.NewDependencyTimeoutError(err, "Dependency timed out")
	default:
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") ||
			strings.Contains(err.Error(), "UNIQUE constraint failed") {
			translated = shared.NewConflictError("Conflict")
		} else {
			translated = shared.NewInternalError(err)
		}
	}
	translated.Err = err

	logEntry := log.WithFields(log.Fields{
		"status_code": translated.StatusCode,
		"error_kind":  translated.Kind,
		"error":       err.Error(),
	})
	if translated.StatusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return translated
}
