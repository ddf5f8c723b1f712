package service

import (
	"sync"

	"go.uber.org/zap"

	"restaurant-api/internal/events"
	"restaurant-api/internal/offers"
)

// ServiceFactory builds application services once, on first use.
type ServiceFactory struct {
	otp       OTPService
	sessions  SessionIssuer
	catalog   offers.Catalog
	publisher events.Publisher
	logger    *zap.Logger

	authOnce     sync.Once
	authService  *AuthService
	offerOnce    sync.Once
	offerService *OfferService
}

func NewServiceFactory(
	otpService OTPService,
	sessions SessionIssuer,
	catalog offers.Catalog,
	publisher events.Publisher,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		otp:       otpService,
		sessions:  sessions,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
	}
}

func (f *ServiceFactory) AuthService() *AuthService {
	f.authOnce.Do(func() {
		f.authService = NewAuthService(f.otp, f.sessions, f.publisher, f.logger.Named("auth"))
	})
	return f.authService
}

func (f *ServiceFactory) OfferService() *OfferService {
	f.offerOnce.Do(func() {
		f.offerService = NewOfferService(f.catalog, f.publisher, f.logger.Named("offers"))
	})
	return f.offerService
}
