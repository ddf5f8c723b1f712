package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/customer"
	"restaurant-api/internal/events"
	"restaurant-api/internal/offers"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type brokenCatalog struct{ err error }

func (b brokenCatalog) List(context.Context) ([]offers.Offer, error) { return nil, b.err }

func (b brokenCatalog) Get(context.Context, string) (offers.Offer, error) {
	return offers.Offer{}, b.err
}

func newOfferService(catalog offers.Catalog) (*OfferService, *events.Recorder) {
	rec := &events.Recorder{}
	svc := NewOfferService(catalog, rec, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, rec
}

func TestCustomerOffersForGoldPhone(t *testing.T) {
	svc, _ := newOfferService(offers.NewMemoryCatalog(offers.SeedOffers(testNow)))

	res, err := svc.CustomerOffers(context.Background(), "05507654321", true)
	if err != nil {
		t.Fatalf("CustomerOffers: %v", err)
	}
	if res.Profile.Tier != customer.Gold || res.Profile.Phone != "+905507654321" {
		t.Fatalf("unexpected profile %+v", res.Profile)
	}
	if res.TotalOffers != 2 || res.Offers[0].ID != "family_combo" {
		t.Fatalf("unexpected offers %+v", res.Offers)
	}
	if !res.Metadata.NextRefresh.Equal(testNow.Add(6 * time.Hour)) {
		t.Fatalf("unexpected next refresh %s", res.Metadata.NextRefresh)
	}
}

func TestCustomerOffersCatalogFailure(t *testing.T) {
	boom := errors.New("scylla down")
	svc, _ := newOfferService(brokenCatalog{err: boom})

	if _, err := svc.CustomerOffers(context.Background(), "+905507654321", true); !errors.Is(err, boom) {
		t.Fatalf("expected catalog error, got %v", err)
	}
	if _, err := svc.CustomerOffers(context.Background(), "12", true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApplyOfferPublishes(t *testing.T) {
	svc, rec := newOfferService(offers.NewMemoryCatalog(offers.SeedOffers(testNow)))

	res, err := svc.ApplyOffer(context.Background(), "welcome_25", "+905501234567", 100)
	if err != nil {
		t.Fatalf("ApplyOffer: %v", err)
	}
	if res.Calculation.DiscountAmount != 25 || res.Calculation.FinalTotal != 75 {
		t.Fatalf("unexpected pricing %+v", res.Calculation)
	}
	if res.Offer.ID != "welcome_25" || !res.AppliedAt.Equal(testNow) {
		t.Fatalf("unexpected result %+v", res)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeOfferApplied || evs[0].Attributes["discount"] != "25.00" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestApplyOfferErrors(t *testing.T) {
	svc, rec := newOfferService(offers.NewMemoryCatalog(offers.SeedOffers(testNow)))
	ctx := context.Background()

	tests := []struct {
		name    string
		offerID string
		phone   string
		total   float64
		wantErr error
	}{
		{"unknown offer", "nope", "+905501234567", 100, offers.ErrOfferNotFound},
		{"below minimum", "family_combo", "+905501234567", 100, offers.ErrMinimumNotMet},
		{"missing total", "welcome_25", "+905501234567", 0, ErrInvalidInput},
		{"missing offer id", "", "+905501234567", 100, ErrInvalidInput},
		{"bad phone", "welcome_25", "abc", 100, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ApplyOffer(ctx, tt.offerID, tt.phone, tt.total); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	for _, typ := range rec.Types() {
		if typ != events.TypeOfferRejected {
			t.Fatalf("only rejections expected, got %s", typ)
		}
	}
}

func TestApplyOfferCatalogFailureIsNotNotFound(t *testing.T) {
	svc, _ := newOfferService(brokenCatalog{err: errors.New("timeout")})
	_, err := svc.ApplyOffer(context.Background(), "welcome_25", "+905501234567", 100)
	if err == nil || errors.Is(err, offers.ErrOfferNotFound) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestAllOffers(t *testing.T) {
	svc, _ := newOfferService(offers.NewMemoryCatalog(offers.SeedOffers(testNow.Add(-10 * 24 * time.Hour))))

	current, err := svc.AllOffers(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if current.TotalOffers != 2 || current.Summary.Expired != 0 {
		t.Fatalf("unexpected listing %+v", current)
	}

	all, _ := svc.AllOffers(context.Background(), true)
	if all.TotalOffers != 3 || all.Summary.Expired != 1 || all.Summary.Active != 3 {
		t.Fatalf("unexpected listing %+v", all.Summary)
	}
}
