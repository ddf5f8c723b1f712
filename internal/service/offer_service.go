package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"restaurant-api/internal/customer"
	"restaurant-api/internal/events"
	"restaurant-api/internal/offers"
	"restaurant-api/internal/util"
)

const offerRefreshInterval = 6 * time.Hour

type OffersMetadata struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	TierEvaluatedAt time.Time `json:"tierEvaluatedAt"`
	NextRefresh     time.Time `json:"nextRefresh"`
}

type CustomerOffers struct {
	Offers      []offers.PricedOffer `json:"offers"`
	Profile     customer.Profile     `json:"profile"`
	TotalOffers int                  `json:"totalOffers"`
	Metadata    OffersMetadata       `json:"metadata"`
}

type AppliedOfferRef struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	DiscountPercentage float64 `json:"discountPercentage"`
}

type AppliedOffer struct {
	Offer       AppliedOfferRef `json:"offer"`
	Calculation offers.Pricing  `json:"calculation"`
	AppliedAt   time.Time       `json:"appliedAt"`
}

type OfferListing struct {
	Offers      []offers.Offer `json:"offers"`
	TotalOffers int            `json:"totalOffers"`
	Summary     offers.Summary `json:"summary"`
}

// OfferService matches catalog offers to customers and prices orders.
type OfferService struct {
	catalog   offers.Catalog
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewOfferService(catalog offers.Catalog, publisher events.Publisher, logger *zap.Logger) *OfferService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &OfferService{
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CustomerOffers classifies the phone and returns the offers it qualifies for.
func (s *OfferService) CustomerOffers(ctx context.Context, rawPhone string, activeOnly bool) (CustomerOffers, error) {
	p, err := canonicalPhone(rawPhone)
	if err != nil {
		return CustomerOffers{}, err
	}

	var (
		profile customer.Profile
		catalog []offers.Offer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile = customer.ProfileOf(p)
		return nil
	})
	g.Go(func() error {
		list, err := s.catalog.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to load offers: %w", err)
		}
		catalog = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return CustomerOffers{}, err
	}

	now := s.now()
	eligible := offers.EligibleOffers(profile.Tier, profile.Stats, catalog, now, activeOnly)

	return CustomerOffers{
		Offers:      eligible,
		Profile:     profile,
		TotalOffers: len(eligible),
		Metadata: OffersMetadata{
			GeneratedAt:     now,
			TierEvaluatedAt: now,
			NextRefresh:     now.Add(offerRefreshInterval),
		},
	}, nil
}

func (s *OfferService) ApplyOffer(ctx context.Context, offerID, rawPhone string, orderTotal float64) (AppliedOffer, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return AppliedOffer{}, fmt.Errorf("%w: offer id is required", ErrInvalidInput)
	}
	if orderTotal <= 0 {
		return AppliedOffer{}, fmt.Errorf("%w: order total must be positive", ErrInvalidInput)
	}
	p, err := canonicalPhone(rawPhone)
	if err != nil {
		return AppliedOffer{}, err
	}

	var offer *offers.Offer
	found, err := s.catalog.Get(ctx, offerID)
	switch {
	case err == nil:
		offer = &found
	case !errors.Is(err, offers.ErrOfferNotFound):
		return AppliedOffer{}, fmt.Errorf("failed to load offer: %w", err)
	}

	now := s.now()
	pricing, err := offers.ApplyOffer(offer, orderTotal, now)
	if err != nil {
		s.publish(ctx, events.TypeOfferRejected, p, map[string]string{
			"offer_id": offerID,
			"reason":   err.Error(),
		})
		return AppliedOffer{}, err
	}

	s.publish(ctx, events.TypeOfferApplied, p, map[string]string{
		"offer_id":    offer.ID,
		"order_total": strconv.FormatFloat(orderTotal, 'f', 2, 64),
		"discount":    strconv.FormatFloat(pricing.DiscountAmount, 'f', 2, 64),
	})

	return AppliedOffer{
		Offer: AppliedOfferRef{
			ID:                 offer.ID,
			Title:              offer.Title,
			DiscountPercentage: offer.DiscountPercentage,
		},
		Calculation: pricing,
		AppliedAt:   now,
	}, nil
}

// AllOffers lists the catalog for administrators.
func (s *OfferService) AllOffers(ctx context.Context, includeExpired bool) (OfferListing, error) {
	list, err := s.catalog.List(ctx)
	if err != nil {
		return OfferListing{}, fmt.Errorf("failed to load offers: %w", err)
	}

	now := s.now()
	if !includeExpired {
		list = offers.FilterUnexpired(list, now)
	}

	return OfferListing{
		Offers:      list,
		TotalOffers: len(list),
		Summary:     offers.Summarize(list, now),
	}, nil
}

func (s *OfferService) publish(ctx context.Context, eventType, phone string, attrs map[string]string) {
	if err := s.publisher.Publish(ctx, events.New(eventType, phone, s.now(), attrs)); err != nil {
		s.logger.Warn("Failed to publish event",
			util.String("type", eventType),
			util.ErrorField(err),
		)
	}
}
