package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/bucketing"
	"restaurant-api/internal/events"
	"restaurant-api/internal/util"
)

const (
	DefaultCodeLength  = 6
	DefaultExpiry      = 5 * time.Minute
	DefaultMaxAttempts = 3

	hashContext = "otp:verify"
)

// Sender delivers a text message to a phone.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// CodeHasher hashes codes before they reach the Store.
type CodeHasher interface {
	Hash(secret, purpose string) (string, error)
	Verify(secret, purpose, encoded string) (bool, error)
}

type Config struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
	LockStripes int
}

type SendResult struct {
	Phone         string `json:"phone"`
	OTPSent       bool   `json:"otpSent"`
	ExpiryMinutes int    `json:"expiryMinutes"`
	IsRegistered  bool   `json:"isRegistered"`
}

type VerifyResult struct {
	Phone         string `json:"phone"`
	Verified      bool   `json:"verified"`
	IsNewCustomer bool   `json:"isNewCustomer"`
}

// Service issues and checks one-time codes. Phones passed in must already be
// canonical.
type Service struct {
	store     Store
	registry  Registry
	sender    Sender
	hasher    CodeHasher
	publisher events.Publisher
	locks     *bucketing.StripedMutex
	cfg       Config
	logger    *zap.Logger

	now func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, registry Registry, sender Sender, hasher CodeHasher, cfg Config, opts ...Option) *Service {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockStripes <= 0 {
		cfg.LockStripes = 256
	}

	s := &Service{
		store:     store,
		registry:  registry,
		sender:    sender,
		hasher:    hasher,
		publisher: events.Nop{},
		locks:     bucketing.NewStripedMutex(cfg.LockStripes),
		cfg:       cfg,
		logger:    util.Named("otp"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send replaces any pending code for phone with a new one and delivers it.
// A delivery failure leaves the new code stored.
func (s *Service) Send(ctx context.Context, phone string) (SendResult, error) {
	code, err := GenerateCode(s.cfg.CodeLength)
	if err != nil {
		return SendResult{}, err
	}
	hash, err := s.hasher.Hash(code, hashContext+":"+phone)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to hash code: %w", err)
	}

	unlock := s.locks.Lock(phone)
	err = s.store.Save(ctx, phone, Record{CodeHash: hash, CreatedAt: s.now(), Attempts: 0})
	unlock()
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to store code: %w", err)
	}

	registered, err := s.registry.IsRegistered(ctx, phone)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to check registration: %w", err)
	}

	minutes := int(s.cfg.Expiry / time.Minute)
	message := fmt.Sprintf("Asalet Restaurant: your verification code is %s. Valid for %d minutes. Do not share this code.", code, minutes)

	if err := s.sender.Send(ctx, phone, message); err != nil {
		s.logger.Warn("Code delivery failed",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err),
		)
		s.publish(ctx, events.TypeOTPDeliveryFailed, phone, map[string]string{"error": err.Error()})
		return SendResult{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.logger.Info("Verification code sent",
		util.String("phone", util.MaskPhone(phone)),
		util.Bool("registered", registered),
	)
	s.publish(ctx, events.TypeOTPSent, phone, map[string]string{"registered": strconv.FormatBool(registered)})

	return SendResult{
		Phone:         phone,
		OTPSent:       true,
		ExpiryMinutes: minutes,
		IsRegistered:  registered,
	}, nil
}

// Verify checks code against the pending record for phone. Every call counts
// as an attempt. Expiry is checked before the attempt budget.
func (s *Service) Verify(ctx context.Context, phone, code string) (VerifyResult, error) {
	result, err := s.verify(ctx, phone, code)
	if err != nil {
		s.publish(ctx, events.TypeOTPRejected, phone, map[string]string{"reason": rejectReason(err)})
		return VerifyResult{}, err
	}

	s.publish(ctx, events.TypeOTPVerified, phone, map[string]string{"new_customer": strconv.FormatBool(result.IsNewCustomer)})
	return result, nil
}

func (s *Service) verify(ctx context.Context, phone, code string) (VerifyResult, error) {
	rec, err := s.claimAttempt(ctx, phone)
	if err != nil {
		return VerifyResult{}, err
	}

	// The comparison is the slow part, so it runs without the stripe lock.
	ok, err := s.hasher.Verify(code, hashContext+":"+phone, rec.CodeHash)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to compare code: %w", err)
	}
	if !ok {
		return VerifyResult{}, ErrCodeMismatch
	}

	unlock := s.locks.Lock(phone)
	defer unlock()

	// A concurrent success or a resend may have replaced the record meanwhile.
	current, err := s.store.Get(ctx, phone)
	if err != nil {
		return VerifyResult{}, err
	}
	if current.CodeHash != rec.CodeHash {
		return VerifyResult{}, ErrCodeMismatch
	}

	if err := s.store.Delete(ctx, phone); err != nil {
		return VerifyResult{}, fmt.Errorf("failed to consume code: %w", err)
	}
	wasNew, err := s.registry.MarkRegistered(ctx, phone)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to register phone: %w", err)
	}

	return VerifyResult{Phone: phone, Verified: true, IsNewCustomer: wasNew}, nil
}

// claimAttempt counts one attempt and applies the expiry and attempt limits.
func (s *Service) claimAttempt(ctx context.Context, phone string) (Record, error) {
	unlock := s.locks.Lock(phone)
	defer unlock()

	rec, err := s.store.IncrementAttempts(ctx, phone)
	if err != nil {
		return Record{}, err
	}

	if !s.now().Before(rec.CreatedAt.Add(s.cfg.Expiry)) {
		if err := s.store.Delete(ctx, phone); err != nil {
			return Record{}, fmt.Errorf("failed to discard expired code: %w", err)
		}
		return Record{}, ErrCodeExpired
	}

	if rec.Attempts > s.cfg.MaxAttempts {
		if err := s.store.Delete(ctx, phone); err != nil {
			return Record{}, fmt.Errorf("failed to discard exhausted code: %w", err)
		}
		return Record{}, ErrAttemptsExceeded
	}

	return rec, nil
}

func (s *Service) publish(ctx context.Context, eventType, phone string, attrs map[string]string) {
	if err := s.publisher.Publish(ctx, events.New(eventType, phone, s.now(), attrs)); err != nil {
		s.logger.Warn("Failed to publish event",
			util.String("type", eventType),
			util.ErrorField(err),
		)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoPendingCode):
		return "no_pending_code"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrAttemptsExceeded):
		return "attempts_exceeded"
	case errors.Is(err, ErrCodeMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
