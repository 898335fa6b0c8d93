package service

import (
	"context"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/quickcourt/auth/internal/domain"
	"github.com/quickcourt/auth/internal/repository"
	"github.com/quickcourt/auth/pkg/auth"
	"github.com/quickcourt/auth/pkg/config"
	"github.com/quickcourt/auth/pkg/events"
	"github.com/quickcourt/auth/pkg/logger"
)

// AuthService turns an authenticated identity into a session. OTP login calls
// IssueSession after the verifier succeeds; the password branch exists for
// users whose preferred method is password.
type AuthService interface {
	LoginWithPassword(ctx context.Context, req *domain.PasswordLoginRequest) (*domain.LoginResponse, error)
	IssueSession(ctx context.Context, userID string) (*domain.LoginResponse, error)
	RegistrationToken(phone string) (string, error)
}

type authService struct {
	userRepo repository.UserRepository
	eventBus events.Publisher
	config   *config.Config
}

func NewAuthService(userRepo repository.UserRepository, eventBus events.Publisher, cfg *config.Config) AuthService {
	return &authService{
		userRepo: userRepo,
		eventBus: eventBus,
		config:   cfg,
	}
}

func (s *authService) LoginWithPassword(ctx context.Context, req *domain.PasswordLoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up user for password login", "error", err)
		return nil, ErrStoreUnavailable
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to compare password hash", "error", err, "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	resp, err := s.session(user)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create session", "error", err, "user_id", user.ID)
		return nil, ErrStoreUnavailable
	}

	s.publishLogin(ctx, user, "password")
	return resp, nil
}

func (s *authService) IssueSession(ctx context.Context, userID string) (*domain.LoginResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load user for session", "error", err, "user_id", userID)
		return nil, ErrStoreUnavailable
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	resp, err := s.session(user)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create session", "error", err, "user_id", user.ID)
		return nil, ErrStoreUnavailable
	}

	s.publishLogin(ctx, user, "otp")
	return resp, nil
}

func (s *authService) RegistrationToken(phone string) (string, error) {
	return auth.NewRegistrationToken(phone, s.config.Auth.JWTSecret, s.config.Auth.RegistrationTokenTTL)
}

func (s *authService) session(user *domain.User) (*domain.LoginResponse, error) {
	token, err := auth.NewAccessToken(
		user.ID,
		user.Phone,
		user.Role,
		scopeFor(user.Role),
		s.config.Auth.JWTSecret,
		s.config.Auth.AccessTokenTTL,
	)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:        user.ToUserInfo(),
	}, nil
}

func (s *authService) publishLogin(ctx context.Context, user *domain.User, method string) {
	if err := s.eventBus.Publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
		UserID:      user.ID,
		PhoneNumber: user.Phone,
		Method:      method,
		LoggedInAt:  time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish login event", "error", err)
	}
}

func scopeFor(role string) string {
	switch role {
	case domain.RoleAdmin:
		return "admin:read admin:write facilities:read facilities:write users:read users:write"
	case domain.RoleFacilityOwner:
		return "facilities:read:own facilities:write:own bookings:read:own bookings:write:own"
	case domain.RoleCustomer:
		return "facilities:read bookings:read:self bookings:write:self"
	default:
		return ""
	}
}
