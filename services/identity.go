package services

import (
	"context"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

// IdentityService answers the cheap identity questions the rate limiter
// asks on every request: is this user registered (owns a plate) and is it
// premium. Answers are cached in Redis for a short TTL with an in-process
// fallback, keeping the hot path off the database.
type IdentityService struct {
	appContext.DefaultService

	dbSvc    DBService
	redisSvc *RedisService
	userRepo *repositories.UserRepository

	cacheTTL time.Duration

	mutex sync.RWMutex
	local map[string]identityCacheEntry
}

type identityCacheEntry struct {
	registered bool
	premium    bool
	expiresAt  time.Time
}

const IDENTITY_SVC = "identity_svc"

const identityCacheKeyPrefix = "identity:"

func (svc IdentityService) Id() string {
	return IDENTITY_SVC
}

func NewIdentityService(userRepo *repositories.UserRepository) *IdentityService {
	return &IdentityService{
		userRepo: userRepo,
		cacheTTL: 5 * time.Minute,
		local:    make(map[string]identityCacheEntry),
	}
}

func (svc *IdentityService) Configure(ctx *appContext.Context) error {
	svc.cacheTTL = 5 * time.Minute
	svc.local = make(map[string]identityCacheEntry)
	return svc.DefaultService.Configure(ctx)
}

func (svc *IdentityService) Start() error {
	if UseSqlite() {
		svc.dbSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	} else {
		svc.dbSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	}
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.userRepo = repositories.NewUserRepository(svc.dbSvc.Db())
	return nil
}

// IsRegistered reports whether the user owns at least one plate.
func (svc *IdentityService) IsRegistered(ctx context.Context, userID string) (bool, error) {
	entry, ok := svc.lookup(ctx, userID)
	if ok {
		return entry.registered, nil
	}

	entry, err := svc.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry.registered, nil
}

// IsPremium reports the premium flag on the account.
func (svc *IdentityService) IsPremium(ctx context.Context, userID string) (bool, error) {
	entry, ok := svc.lookup(ctx, userID)
	if ok {
		return entry.premium, nil
	}

	entry, err := svc.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry.premium, nil
}

// Invalidate drops cached answers for a user, called after plate
// registration or premium changes so new quota applies promptly.
func (svc *IdentityService) Invalidate(ctx context.Context, userID string) {
	svc.mutex.Lock()
	delete(svc.local, userID)
	svc.mutex.Unlock()

	if svc.redisSvc != nil {
		if err := svc.redisSvc.Delete(ctx, identityCacheKeyPrefix+userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Debug("Failed to invalidate identity cache")
		}
	}
}

// ==================== PLATES ====================

// RegisterPlate claims a plate for the user. Registration flips the quota
// bracket, so the cached identity answers are invalidated immediately.
func (svc *IdentityService) RegisterPlate(ctx context.Context, userID string, req dto.RegisterPlateRequest) (*dto.PlateResponse, error) {
	number := repositories.NormalizePlate(req.Number)
	if !dto.ValidPlate(number) {
		return nil, shared.NewValidationError(nil, "Invalid plate format")
	}

	now := time.Now()
	plate, err := svc.userRepo.CreatePlate(&model.Plate{
		Number:    number,
		Country:   strings.ToUpper(req.Country),
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if svc.dbSvc != nil {
			return nil, svc.dbSvc.HandleError(err)
		}
		return nil, TranslateDBError(err)
	}

	svc.Invalidate(ctx, userID)

	log.WithFields(log.Fields{
		"user_id": userID,
		"plate":   plate.Number,
	}).Info("Plate registered")

	return &dto.PlateResponse{
		ID:        plate.ID,
		Number:    plate.Number,
		Country:   plate.Country,
		CreatedAt: plate.CreatedAt,
	}, nil
}

func (svc *IdentityService) ListPlates(userID string) (*dto.PlateListResponse, error) {
	plates, err := svc.userRepo.GetPlatesByOwner(userID)
	if err != nil {
		if svc.dbSvc != nil {
			return nil, svc.dbSvc.HandleError(err)
		}
		return nil, TranslateDBError(err)
	}

	resp := &dto.PlateListResponse{Plates: make([]dto.PlateResponse, 0, len(plates))}
	for _, p := range plates {
		resp.Plates = append(resp.Plates, dto.PlateResponse{
			ID:        p.ID,
			Number:    p.Number,
			Country:   p.Country,
			CreatedAt: p.CreatedAt,
		})
	}
	return resp, nil
}

func (svc *IdentityService) lookup(ctx context.Context, userID string) (identityCacheEntry, bool) {
	svc.mutex.RLock()
	entry, ok := svc.local[userID]
	svc.mutex.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry, true
	}

	if svc.redisSvc != nil {
		val, err := svc.redisSvc.Get(ctx, identityCacheKeyPrefix+userID)
		if err == nil && val != "" {
			entry := identityCacheEntry{
				registered: val[0] == '1',
				premium:    len(val) > 1 && val[1] == '1',
				expiresAt:  time.Now().Add(svc.cacheTTL),
			}
			svc.store(userID, entry)
			return entry, true
		}
	}

	return identityCacheEntry{}, false
}

func (svc *IdentityService) load(ctx context.Context, userID string) (identityCacheEntry, error) {
	count, err := svc.userRepo.CountPlatesByOwner(userID)
	if err != nil {
		return identityCacheEntry{}, err
	}

	premium := false
	if user, err := svc.userRepo.GetUserByID(userID); err == nil {
		premium = user.Premium
	}

	entry := identityCacheEntry{
		registered: count > 0,
		premium:    premium,
		expiresAt:  time.Now().Add(svc.cacheTTL),
	}
	svc.store(userID, entry)

	if svc.redisSvc != nil {
		val := cacheFlag(entry.registered) + cacheFlag(entry.premium)
		if err := svc.redisSvc.Set(ctx, identityCacheKeyPrefix+userID, val, svc.cacheTTL); err != nil {
			log.WithError(err).Debug("Failed to cache identity flags")
		}
	}

	return entry, nil
}

func (svc *IdentityService) store(userID string, entry identityCacheEntry) {
	svc.mutex.Lock()
	svc.local[userID] = entry
	svc.mutex.Unlock()
}

func cacheFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
