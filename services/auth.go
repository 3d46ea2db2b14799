package services

import (
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

// AuthService owns account registration, login and the fiber auth
// middleware. Identity is account based; message sending itself stays
// anonymous (sender IDs never appear in recipient-facing payloads).
type AuthService struct {
	context.DefaultService

	dbSvc    DBService
	jwtSvc   *JWTService
	userRepo *repositories.UserRepository
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func NewAuthService(userRepo *repositories.UserRepository, jwtSvc *JWTService) *AuthService {
	return &AuthService{userRepo: userRepo, jwtSvc: jwtSvc}
}

func (svc *AuthService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	if UseSqlite() {
		svc.dbSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	} else {
		svc.dbSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	}
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.userRepo = repositories.NewUserRepository(svc.dbSvc.Db())
	return nil
}

func (svc *AuthService) Register(req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	now := time.Now()
	user, err := svc.userRepo.CreateUser(&model.User{
		Email:     req.Email,
		Username:  req.Username,
		Password:  string(hashed),
		Role:      shared.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, svc.handleDBError(err)
	}

	log.WithField("user_id", user.ID).Info("User registered")

	return &dto.RegisterResponse{
		UserID:  user.ID,
		Message: "Registration successful",
	}, nil
}

func (svc *AuthService) Login(req dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := svc.userRepo.GetUserByEmailOrUsername(req.EmailOrUsername)
	if err != nil {
		return nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	pair, err := svc.jwtSvc.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	if err := svc.userRepo.UpdateLastLogin(user.ID); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("Failed to update last login")
	}

	return &dto.LoginResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
		UserID:      user.ID,
		Role:        user.Role,
	}, nil
}

func (svc *AuthService) handleDBError(err error) error {
	if svc.dbSvc != nil {
		return svc.dbSvc.HandleError(err)
	}
	return TranslateDBError(err)
}

// ==================== MIDDLEWARE ====================

// RequiredAuth rejects requests without a valid bearer token.
func (svc *AuthService) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := svc.claimsFromRequest(c)
		if err != nil {
			return shared.NewUnauthorizedError(err.Error())
		}

		c.Locals(shared.UserID, claims.UserID)
		c.Locals(shared.UserRole, claims.Role)
		return c.Next()
	}
}

// OptionalAuth attaches identity when a valid token is present and lets
// anonymous requests through untouched. Invalid tokens are still rejected
// so a typo'd credential does not silently demote a caller to guest quota.
func (svc *AuthService) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		claims, err := svc.claimsFromRequest(c)
		if err != nil {
			return shared.NewUnauthorizedError(err.Error())
		}

		c.Locals(shared.UserID, claims.UserID)
		c.Locals(shared.UserRole, claims.Role)
		return c.Next()
	}
}

// RequireRole guards admin surfaces. Must run after RequiredAuth.
func (svc *AuthService) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current, _ := c.Locals(shared.UserRole).(string)
		if current != role {
			return shared.NewAuthorizationError("Insufficient permissions")
		}
		return c.Next()
	}
}

func (svc *AuthService) claimsFromRequest(c *fiber.Ctx) (*CustomClaims, error) {
	token, err := svc.jwtSvc.ExtractTokenFromHeader(c.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return svc.jwtSvc.VerifyJWTToken(token)
}
