// Package offers holds the promotional offer catalog and the rules for
// matching offers to customers and pricing an order.
package offers

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"restaurant-api/internal/customer"
)

var (
	ErrOfferNotFound = errors.New("offer not found")
	ErrOfferExpired  = errors.New("offer has expired")
	ErrOfferInactive = errors.New("offer is not active")
	ErrMinimumNotMet = errors.New("order total is below the offer minimum")
)

type OfferType string

const (
	TypeNewCustomer OfferType = "new_customer"
	TypeCombo       OfferType = "combo"
	TypeLoyalty     OfferType = "loyalty"
)

type Offer struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	DiscountPercentage float64         `json:"discountPercentage"`
	MinOrderAmount     float64         `json:"minOrderAmount"`
	MaxDiscountAmount  float64         `json:"maxDiscountAmount"`
	ValidUntil         time.Time       `json:"validUntil"`
	ImageURL           string          `json:"imageUrl"`
	OfferType          OfferType       `json:"offerType"`
	IsActive           bool            `json:"isActive"`
	EligibleTiers      []customer.Tier `json:"customerTiers"`
}

// EligibleFor reports whether tier is in the offer's tier list.
func (o Offer) EligibleFor(tier customer.Tier) bool {
	return slices.Contains(o.EligibleTiers, tier)
}

// Expired reports whether the offer is no longer valid at now.
func (o Offer) Expired(now time.Time) bool {
	return !now.Before(o.ValidUntil)
}

// Catalog is the source of offers.
type Catalog interface {
	List(ctx context.Context) ([]Offer, error)
	Get(ctx context.Context, id string) (Offer, error)
}

// SeedOffers returns the launch catalog with validity windows measured from start.
func SeedOffers(start time.Time) []Offer {
	day := 24 * time.Hour
	return []Offer{
		{
			ID:                 "welcome_25",
			Title:              "Welcome Offer",
			Description:        "25% off your first order! Welcome to Asalet Restaurant family",
			DiscountPercentage: 25,
			MinOrderAmount:     30,
			MaxDiscountAmount:  50,
			ValidUntil:         start.Add(30 * day),
			ImageURL:           "https://images.unsplash.com/photo-1567620905732-2d1ec7ab7445?w=400",
			OfferType:          TypeNewCustomer,
			IsActive:           true,
			EligibleTiers:      []customer.Tier{customer.Bronze},
		},
		{
			ID:                 "family_combo",
			Title:              "Family Combo",
			Description:        "Mandi + Kabsa + 2 drinks + dessert = 40% off",
			DiscountPercentage: 40,
			MinOrderAmount:     150,
			MaxDiscountAmount:  100,
			ValidUntil:         start.Add(15 * day),
			ImageURL:           "https://images.unsplash.com/photo-1555939594-58d7cb561ad1?w=400",
			OfferType:          TypeCombo,
			IsActive:           true,
			EligibleTiers:      []customer.Tier{customer.Silver, customer.Gold, customer.Platinum},
		},
		{
			ID:                 "golden_customer",
			Title:              "Golden Customer Offer",
			Description:        "20% discount + free dessert for our valued golden customers",
			DiscountPercentage: 20,
			MinOrderAmount:     75,
			MaxDiscountAmount:  60,
			ValidUntil:         start.Add(7 * day),
			ImageURL:           "https://images.unsplash.com/photo-1488477181946-6428a0291777?w=400",
			OfferType:          TypeLoyalty,
			IsActive:           true,
			EligibleTiers:      []customer.Tier{customer.Gold, customer.Platinum},
		},
	}
}

// MemoryCatalog keeps offers in insertion order.
type MemoryCatalog struct {
	mu     sync.RWMutex
	offers []Offer
}

func NewMemoryCatalog(offers []Offer) *MemoryCatalog {
	return &MemoryCatalog{offers: slices.Clone(offers)}
}

func (c *MemoryCatalog) List(context.Context) ([]Offer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.offers), nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (Offer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, o := range c.offers {
		if o.ID == id {
			return o, nil
		}
	}
	return Offer{}, ErrOfferNotFound
}

// Put inserts or replaces an offer by ID.
func (c *MemoryCatalog) Put(offer Offer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.offers {
		if o.ID == offer.ID {
			c.offers[i] = offer
			return
		}
	}
	c.offers = append(c.offers, offer)
}
