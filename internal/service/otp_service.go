package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quickcourt/auth/internal/delivery"
	"github.com/quickcourt/auth/internal/domain"
	"github.com/quickcourt/auth/internal/repository"
	"github.com/quickcourt/auth/pkg/events"
	"github.com/quickcourt/auth/pkg/logger"
)

type OTPService interface {
	Issue(ctx context.Context, req *domain.SendOTPRequest) (*domain.OTPIssued, error)
	Verify(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.OTPVerified, error)
	CheckPhoneExists(ctx context.Context, phone string) (*domain.PhoneCheck, error)
}

type otpService struct {
	otpRepo    repository.OTPRepository
	userRepo   repository.UserRepository
	dispatcher *delivery.Dispatcher
	eventBus   events.Publisher
}

func NewOTPService(
	otpRepo repository.OTPRepository,
	userRepo repository.UserRepository,
	dispatcher *delivery.Dispatcher,
	eventBus events.Publisher,
) OTPService {
	return &otpService{
		otpRepo:    otpRepo,
		userRepo:   userRepo,
		dispatcher: dispatcher,
		eventBus:   eventBus,
	}
}

func (s *otpService) Issue(ctx context.Context, req *domain.SendOTPRequest) (*domain.OTPIssued, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	// Soft per-phone cap: read-then-decide, no locking. Concurrent issuances
	// can squeeze past the limit by a small margin, which is fine for an
	// anti-abuse heuristic and must not be relied on as a security control.
	since := time.Now().Add(-domain.OTPRateWindow)
	count, err := s.otpRepo.CountIssuedSince(ctx, req.PhoneNumber, since)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to count recent OTPs", "error", err)
		return nil, ErrStoreUnavailable
	}
	if count >= domain.MaxOTPPerWindow {
		return nil, ErrRateLimited
	}

	code, err := generateCode()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to generate OTP code", "error", err)
		return nil, ErrStoreUnavailable
	}

	rec := &domain.OTPRecord{
		ID:          uuid.NewString(),
		PhoneNumber: req.PhoneNumber,
		Code:        code,
		Purpose:     req.Purpose,
		MaxAttempts: domain.MaxOTPAttempts,
		ExpiresAt:   time.Now().Add(domain.OTPExpiry),
	}
	if req.UserID != "" {
		rec.UserID = &req.UserID
	}

	if err := s.otpRepo.Create(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "Failed to create OTP record", "error", err)
		return nil, ErrStoreUnavailable
	}

	// The user row only matters for channel selection and the sent stamp;
	// failing to load it must not fail the issue.
	var user *domain.User
	if req.UserID != "" {
		user, err = s.userRepo.FindByID(ctx, req.UserID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to load user for OTP delivery", "error", err, "user_id", req.UserID)
		}
	}

	channel, err := s.dispatcher.Deliver(ctx, rec, user)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to deliver OTP code", "error", err, "channel", channel)
		// An undeliverable pending code would silently eat rate-limit budget,
		// so take the record back out.
		if delErr := s.otpRepo.Delete(ctx, rec.ID); delErr != nil {
			logger.ErrorContext(ctx, "Failed to roll back undelivered OTP record", "error", delErr, "otp_id", rec.ID)
		}
		return nil, ErrDeliveryFailed
	}

	if user != nil {
		if err := s.userRepo.StampOTPSent(ctx, user.ID); err != nil {
			logger.WarnContext(ctx, "Failed to stamp last OTP sent", "error", err, "user_id", user.ID)
		}
	}

	if err := s.eventBus.Publish(ctx, events.OTPIssued, events.OTPIssuedEvent{
		OTPID:       rec.ID,
		UserID:      req.UserID,
		PhoneNumber: rec.PhoneNumber,
		Purpose:     string(rec.Purpose),
		Channel:     channel,
		ExpiresAt:   rec.ExpiresAt,
		IssuedAt:    rec.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish OTP issued event", "error", err)
	}

	return &domain.OTPIssued{
		OTPID:     rec.ID,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *otpService) Verify(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.OTPVerified, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	rec, err := s.otpRepo.FindActive(ctx, req.PhoneNumber, req.Code, req.Purpose)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up OTP record", "error", err)
		return nil, ErrStoreUnavailable
	}

	if rec == nil {
		// Nothing verifiable matched. Still bump counters on every record for
		// this phone+code+purpose, stale ones included, to keep the abuse
		// signal even when someone replays old codes.
		if _, err := s.otpRepo.IncrementAttempts(ctx, req.PhoneNumber, req.Code, req.Purpose); err != nil {
			logger.WarnContext(ctx, "Failed to increment OTP attempts", "error", err)
		}
		return nil, ErrCodeInvalid
	}

	verifiedAt, ok, err := s.otpRepo.MarkVerified(ctx, rec.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark OTP verified", "error", err)
		return nil, ErrStoreUnavailable
	}
	if !ok {
		// Lost a race with a concurrent verify of the same record.
		return nil, ErrCodeInvalid
	}

	result := &domain.OTPVerified{PhoneNumber: rec.PhoneNumber}
	if rec.UserID != nil {
		result.UserID = *rec.UserID
	}

	if rec.Purpose == domain.PurposePhoneVerification && rec.UserID != nil {
		if err := s.userRepo.MarkPhoneVerified(ctx, *rec.UserID); err != nil {
			logger.WarnContext(ctx, "Failed to mark user phone verified", "error", err, "user_id", *rec.UserID)
		} else if err := s.eventBus.Publish(ctx, events.UserPhoneVerified, events.UserPhoneVerifiedEvent{
			UserID:      *rec.UserID,
			PhoneNumber: rec.PhoneNumber,
			VerifiedAt:  verifiedAt,
		}); err != nil {
			logger.WarnContext(ctx, "Failed to publish phone verified event", "error", err)
		}
	}

	if err := s.eventBus.Publish(ctx, events.OTPVerified, events.OTPVerifiedEvent{
		OTPID:       rec.ID,
		UserID:      result.UserID,
		PhoneNumber: rec.PhoneNumber,
		Purpose:     string(rec.Purpose),
		VerifiedAt:  verifiedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish OTP verified event", "error", err)
	}

	return result, nil
}

func (s *otpService) CheckPhoneExists(ctx context.Context, phone string) (*domain.PhoneCheck, error) {
	req := domain.PhoneCheckRequest{PhoneNumber: phone}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	user, err := s.userRepo.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up user by phone", "error", err)
		return nil, ErrStoreUnavailable
	}

	check := &domain.PhoneCheck{Exists: user != nil}
	if user != nil {
		check.User = user.ToUserInfo()
	}
	return check, nil
}

// generateCode draws a uniformly random 6-digit code. Collisions across
// records are harmless: lookup is always scoped by phone+code+purpose.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
