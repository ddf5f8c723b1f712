package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/events"
	"restaurant-api/internal/otp"
	"restaurant-api/internal/phone"
	"restaurant-api/internal/session"
	"restaurant-api/internal/util"
)

// OTPService is implemented by *otp.Service.
type OTPService interface {
	Send(ctx context.Context, phone string) (otp.SendResult, error)
	Verify(ctx context.Context, phone, code string) (otp.VerifyResult, error)
}

// SessionIssuer is implemented by *session.Issuer.
type SessionIssuer interface {
	Issue(phone string) (session.Credential, error)
	Refresh(token string) (session.Credential, error)
}

type VerifyResponse struct {
	Phone         string    `json:"phone"`
	Verified      bool      `json:"verified"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IsNewCustomer bool      `json:"isNewCustomer"`
}

type RefreshResponse struct {
	Token     string    `json:"token"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthService runs the phone verification flow and hands out sessions.
type AuthService struct {
	otp       OTPService
	sessions  SessionIssuer
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthService(otpService OTPService, sessions SessionIssuer, publisher events.Publisher, logger *zap.Logger) *AuthService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &AuthService{
		otp:       otpService,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *AuthService) SendOTP(ctx context.Context, rawPhone string) (otp.SendResult, error) {
	p, err := canonicalPhone(rawPhone)
	if err != nil {
		return otp.SendResult{}, err
	}
	return s.otp.Send(ctx, p)
}

func (s *AuthService) VerifyOTP(ctx context.Context, rawPhone, code string) (VerifyResponse, error) {
	p, err := canonicalPhone(rawPhone)
	if err != nil {
		return VerifyResponse{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return VerifyResponse{}, fmt.Errorf("%w: verification code is required", ErrInvalidInput)
	}

	result, err := s.otp.Verify(ctx, p, code)
	if err != nil {
		return VerifyResponse{}, err
	}

	cred, err := s.sessions.Issue(p)
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info("Phone verified",
		util.String("phone", util.MaskPhone(p)),
		util.Bool("new_customer", result.IsNewCustomer),
	)

	return VerifyResponse{
		Phone:         p,
		Verified:      true,
		Token:         cred.Token,
		ExpiresAt:     cred.ExpiresAt,
		IsNewCustomer: result.IsNewCustomer,
	}, nil
}

func (s *AuthService) RefreshToken(ctx context.Context, token string) (RefreshResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return RefreshResponse{}, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}

	cred, err := s.sessions.Refresh(token)
	if err != nil {
		return RefreshResponse{}, err
	}

	if err := s.publisher.Publish(ctx, events.New(events.TypeTokenRefreshed, cred.Phone, s.now(), nil)); err != nil {
		s.logger.Warn("Failed to publish refresh event", util.ErrorField(err))
	}

	return RefreshResponse{Token: cred.Token, Phone: cred.Phone, ExpiresAt: cred.ExpiresAt}, nil
}

func canonicalPhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	p, err := phone.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p, nil
}
