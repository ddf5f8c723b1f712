package offers

import (
	"context"
	"errors"
	"testing"
	"time"

	"restaurant-api/internal/customer"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedByID(t *testing.T, id string) *Offer {
	t.Helper()
	o, err := NewMemoryCatalog(SeedOffers(start)).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return &o
}

func TestApplyOffer(t *testing.T) {
	welcome := seedByID(t, "welcome_25")

	tests := []struct {
		name     string
		total    float64
		discount float64
		final    float64
	}{
		{"percentage", 100, 25, 75},
		{"capped", 500, 50, 450},
		{"at minimum", 30, 7.5, 22.5},
		{"rounded", 33.33, 8.33, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ApplyOffer(welcome, tt.total, start)
			if err != nil {
				t.Fatalf("ApplyOffer: %v", err)
			}
			if p.DiscountAmount != tt.discount || p.FinalTotal != tt.final || p.Savings != tt.discount {
				t.Fatalf("unexpected pricing %+v", p)
			}
			if p.OriginalTotal != tt.total {
				t.Fatalf("original total changed: %v", p.OriginalTotal)
			}
		})
	}
}

func TestApplyOfferRejections(t *testing.T) {
	welcome := seedByID(t, "welcome_25")
	inactive := *welcome
	inactive.IsActive = false

	tests := []struct {
		name    string
		offer   *Offer
		total   float64
		now     time.Time
		wantErr error
	}{
		{"missing offer", nil, 100, start, ErrOfferNotFound},
		{"below minimum", welcome, 29.99, start, ErrMinimumNotMet},
		{"inactive", &inactive, 100, start, ErrOfferInactive},
		{"expired at boundary", welcome, 100, welcome.ValidUntil, ErrOfferExpired},
		{"expired wins over inactive", &inactive, 1, welcome.ValidUntil.Add(time.Hour), ErrOfferExpired},
		{"inactive wins over minimum", &inactive, 1, start, ErrOfferInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ApplyOffer(tt.offer, tt.total, tt.now); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEligibleOffers(t *testing.T) {
	catalog := SeedOffers(start)
	stats := customer.Stats{TotalOrders: 36, TotalSpent: 3321, AverageOrderValue: 92}

	got := EligibleOffers(customer.Gold, stats, catalog, start, true)
	if len(got) != 2 {
		t.Fatalf("expected 2 offers for gold, got %d", len(got))
	}
	if got[0].ID != "family_combo" || got[1].ID != "golden_customer" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].DaysLeft != 15 || got[1].DaysLeft != 7 {
		t.Fatalf("unexpected days left: %d, %d", got[0].DaysLeft, got[1].DaysLeft)
	}
	if got[0].PotentialSavings != 36.8 || got[1].PotentialSavings != 18.4 {
		t.Fatalf("unexpected savings: %v, %v", got[0].PotentialSavings, got[1].PotentialSavings)
	}

	bronze := EligibleOffers(customer.Bronze, customer.Stats{AverageOrderValue: 300}, catalog, start, true)
	if len(bronze) != 1 || bronze[0].ID != "welcome_25" {
		t.Fatalf("unexpected bronze offers: %+v", bronze)
	}
	if bronze[0].PotentialSavings != 50 {
		t.Fatalf("savings should be capped at 50, got %v", bronze[0].PotentialSavings)
	}
}

func TestEligibleOffersNewCustomerFirst(t *testing.T) {
	catalog := SeedOffers(start)
	catalog[0].EligibleTiers = append(catalog[0].EligibleTiers, customer.Platinum)

	got := EligibleOffers(customer.Platinum, customer.Stats{AverageOrderValue: 100}, catalog, start, true)
	if len(got) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(got))
	}
	want := []string{"welcome_25", "family_combo", "golden_customer"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestEligibleOffersOrderWithinNewCustomerGroup(t *testing.T) {
	until := start.Add(10 * 24 * time.Hour)
	offer := func(id string, typ OfferType, pct float64) Offer {
		return Offer{
			ID:                 id,
			DiscountPercentage: pct,
			MaxDiscountAmount:  100,
			ValidUntil:         until,
			OfferType:          typ,
			IsActive:           true,
			EligibleTiers:      []customer.Tier{customer.Bronze},
		}
	}
	catalog := []Offer{
		offer("combo_40", TypeCombo, 40),
		offer("welcome_20_a", TypeNewCustomer, 20),
		offer("welcome_30", TypeNewCustomer, 30),
		offer("loyalty_15", TypeLoyalty, 15),
		offer("welcome_20_b", TypeNewCustomer, 20),
		offer("combo_15", TypeCombo, 15),
	}

	got := EligibleOffers(customer.Bronze, customer.Stats{AverageOrderValue: 100}, catalog, start, true)
	want := []string{"welcome_30", "welcome_20_a", "welcome_20_b", "combo_40", "loyalty_15", "combo_15"}
	if len(got) != len(want) {
		t.Fatalf("expected %d offers, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].OfferType == got[i].OfferType && got[i-1].DiscountPercentage < got[i].DiscountPercentage {
			t.Fatalf("discount increases within %s at %d", got[i].OfferType, i)
		}
	}

	// Catalog order decides ties.
	catalog[1], catalog[4] = catalog[4], catalog[1]
	got = EligibleOffers(customer.Bronze, customer.Stats{AverageOrderValue: 100}, catalog, start, true)
	if got[1].ID != "welcome_20_b" || got[2].ID != "welcome_20_a" {
		t.Fatalf("equal discounts should keep catalog order, got %s, %s", got[1].ID, got[2].ID)
	}
}

func TestEligibleOffersExpiryAndActivity(t *testing.T) {
	catalog := SeedOffers(start)
	catalog[1].IsActive = false

	later := start.Add(5 * 24 * time.Hour)
	active := EligibleOffers(customer.Gold, customer.Stats{}, catalog, later, true)
	if len(active) != 1 || active[0].ID != "golden_customer" {
		t.Fatalf("unexpected active offers: %+v", active)
	}
	if active[0].DaysLeft != 2 || !active[0].IsExpiringSoon {
		t.Fatalf("expected expiring soon with 2 days left, got %+v", active[0])
	}

	all := EligibleOffers(customer.Gold, customer.Stats{}, catalog, later, false)
	if len(all) != 2 {
		t.Fatalf("inactive offers should be kept when activeOnly is false, got %d", len(all))
	}

	if got := EligibleOffers(customer.Gold, customer.Stats{}, catalog, start.Add(8*24*time.Hour), false); len(got) != 1 {
		t.Fatalf("expired loyalty offer should be dropped, got %d", len(got))
	}
}

func TestSummarize(t *testing.T) {
	catalog := SeedOffers(start)
	catalog[2].IsActive = false

	s := Summarize(catalog, start.Add(10*24*time.Hour))
	if s.Total != 3 || s.Active != 2 || s.Expired != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.ByType[TypeNewCustomer] != 1 || s.ByType[TypeCombo] != 1 || s.ByType[TypeLoyalty] != 1 {
		t.Fatalf("unexpected by-type counts %v", s.ByType)
	}

	if got := FilterUnexpired(catalog, start.Add(10*24*time.Hour)); len(got) != 2 {
		t.Fatalf("expected 2 unexpired offers, got %d", len(got))
	}
}

func TestMemoryCatalog(t *testing.T) {
	c := NewMemoryCatalog(SeedOffers(start))
	ctx := context.Background()

	if _, err := c.Get(ctx, "nope"); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}

	c.Put(Offer{ID: "family_combo", Title: "Updated"})
	c.Put(Offer{ID: "late_night"})

	list, _ := c.List(ctx)
	if len(list) != 4 || list[1].Title != "Updated" || list[3].ID != "late_night" {
		t.Fatalf("unexpected catalog contents: %+v", list)
	}
}
