package scylla

import (
	"errors"
	"testing"
	"time"

	"restaurant-api/internal/customer"
	"restaurant-api/internal/offers"
)

func TestOfferRowToOffer(t *testing.T) {
	valid := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	row := offerRow{
		id:         "family_combo",
		title:      "Family Combo",
		pct:        40,
		minOrder:   150,
		maxDisc:    100,
		validUntil: valid,
		offerType:  "combo",
		active:     true,
		tiers:      []string{"silver", "gold"},
	}

	o, err := row.toOffer()
	if err != nil {
		t.Fatalf("toOffer: %v", err)
	}
	if o.OfferType != offers.TypeCombo || !o.ValidUntil.Equal(valid) || !o.IsActive {
		t.Fatalf("unexpected offer %+v", o)
	}
	if !o.EligibleFor(customer.Gold) || o.EligibleFor(customer.Bronze) {
		t.Fatalf("unexpected tiers %v", o.EligibleTiers)
	}
}

func TestOfferRowRejectsUnknownTier(t *testing.T) {
	row := offerRow{id: "x", tiers: []string{"diamond"}}
	if _, err := row.toOffer(); !errors.Is(err, customer.ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}
