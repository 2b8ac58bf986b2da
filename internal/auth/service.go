package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/internal/users"
	"github.com/brovar/digimarket-backend/pkg/audit"
	pkgauth "github.com/brovar/digimarket-backend/pkg/auth"
	"github.com/brovar/digimarket-backend/pkg/config"
	"github.com/brovar/digimarket-backend/pkg/db"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/security"
)

const minPasswordLength = 8

type sessionManager interface {
	Create(ctx context.Context, accessID, userID string) error
	Revoke(ctx context.Context, accessID string) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service handles account registration and session lifecycle.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, accessID string) error
}

// RegisterInput carries a signup request. Only buyer and seller accounts
// can be self-registered.
type RegisterInput struct {
	Email    string
	Password string
	Role     enums.UserRole
	ActorIP  *string
}

// LoginInput carries a credential check request.
type LoginInput struct {
	Email    string
	Password string
	ActorIP  *string
}

// LoginResult is the issued token plus the identity it encodes.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	UserID    uuid.UUID
	Role      enums.UserRole
}

type service struct {
	repo     users.Repository
	sessions sessionManager
	limiter  rateLimiter
	audit    audit.Recorder
	jwtCfg   config.JWTConfig
	passCfg  config.PasswordConfig
	limitCfg config.AuthRateLimitConfig
	now      func() time.Time
}

// NewService builds the auth service.
func NewService(
	repo users.Repository,
	sessions sessionManager,
	limiter rateLimiter,
	auditRec audit.Recorder,
	jwtCfg config.JWTConfig,
	passCfg config.PasswordConfig,
	limitCfg config.AuthRateLimitConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if auditRec == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{
		repo:     repo,
		sessions: sessions,
		limiter:  limiter,
		audit:    auditRec,
		jwtCfg:   jwtCfg,
		passCfg:  passCfg,
		limitCfg: limitCfg,
		now:      time.Now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
	}
	if len(input.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password too short")
	}
	if input.Role != enums.UserRoleBuyer && input.Role != enums.UserRoleSeller {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller")
	}

	if err := s.allow(ctx, "register:email:"+email, int64(s.limitCfg.RegisterEmailLimit), s.limitCfg.RegisterWindow); err != nil {
		return nil, err
	}
	if input.ActorIP != nil {
		if err := s.allow(ctx, "register:ip:"+*input.ActorIP, int64(s.limitCfg.RegisterIPLimit), s.limitCfg.RegisterWindow); err != nil {
			return nil, err
		}
	}

	hash, err := security.HashPassword(input.Password, s.passCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		Status:       enums.UserStatusActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditUserRegister,
		ActorID: &user.ID,
		Message: fmt.Sprintf("registered as %s", user.Role),
		IP:      input.ActorIP,
	})
	return user, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password required")
	}

	if err := s.allow(ctx, "login:email:"+email, int64(s.limitCfg.LoginEmailLimit), s.limitCfg.LoginWindow); err != nil {
		return nil, err
	}
	if input.ActorIP != nil {
		if err := s.allow(ctx, "login:ip:"+*input.ActorIP, int64(s.limitCfg.LoginIPLimit), s.limitCfg.LoginWindow); err != nil {
			return nil, err
		}
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		// unknown email and bad password must be indistinguishable
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if user.Status != enums.UserStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is inactive")
	}

	now := s.now()
	jti := uuid.NewString()
	token, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    jti,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	if err := s.sessions.Create(ctx, jti, user.ID.String()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditUserLogin,
		ActorID: &user.ID,
		Message: "login successful",
		IP:      input.ActorIP,
	})
	return &LoginResult{
		Token:     token,
		ExpiresAt: now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
		UserID:    user.ID,
		Role:      user.Role,
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "session identifier missing")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) allow(ctx context.Context, scope string, limit int64, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, scope, limit, window)
	if err != nil {
		// rate limiting is a guard, not a gate; redis loss must not lock everyone out
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
	}
	return nil
}
