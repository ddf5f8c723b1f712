package offers

import (
	"cmp"
	"math"
	"slices"
	"time"

	"restaurant-api/internal/customer"
)

const expiringSoonDays = 3

// PricedOffer is an offer annotated for one customer.
type PricedOffer struct {
	Offer
	DaysLeft         int     `json:"daysLeft"`
	IsExpiringSoon   bool    `json:"isExpiringSoon"`
	PotentialSavings float64 `json:"potentialSavings"`
}

type Pricing struct {
	OriginalTotal  float64 `json:"originalTotal"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalTotal     float64 `json:"finalTotal"`
	Savings        float64 `json:"savings"`
}

type Summary struct {
	Total   int               `json:"total"`
	Active  int               `json:"active"`
	Expired int               `json:"expired"`
	ByType  map[OfferType]int `json:"byType"`
}

// EligibleOffers returns the unexpired offers open to tier, new-customer
// offers first and then by descending discount. With activeOnly set,
// inactive offers are dropped too.
func EligibleOffers(tier customer.Tier, stats customer.Stats, catalog []Offer, now time.Time, activeOnly bool) []PricedOffer {
	out := make([]PricedOffer, 0, len(catalog))
	for _, o := range catalog {
		if o.Expired(now) || !o.EligibleFor(tier) {
			continue
		}
		if activeOnly && !o.IsActive {
			continue
		}

		days := int(math.Ceil(o.ValidUntil.Sub(now).Hours() / 24))
		out = append(out, PricedOffer{
			Offer:            o,
			DaysLeft:         days,
			IsExpiringSoon:   days <= expiringSoonDays,
			PotentialSavings: math.Min(float64(stats.AverageOrderValue)*o.DiscountPercentage/100, o.MaxDiscountAmount),
		})
	}

	slices.SortStableFunc(out, func(a, b PricedOffer) int {
		aNew, bNew := a.OfferType == TypeNewCustomer, b.OfferType == TypeNewCustomer
		if aNew != bNew {
			if aNew {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.DiscountPercentage, a.DiscountPercentage)
	})
	return out
}

// ApplyOffer prices orderTotal under offer. A nil offer means the lookup failed.
func ApplyOffer(offer *Offer, orderTotal float64, now time.Time) (Pricing, error) {
	if offer == nil {
		return Pricing{}, ErrOfferNotFound
	}
	if offer.Expired(now) {
		return Pricing{}, ErrOfferExpired
	}
	if !offer.IsActive {
		return Pricing{}, ErrOfferInactive
	}
	if orderTotal < offer.MinOrderAmount {
		return Pricing{}, ErrMinimumNotMet
	}

	discount := math.Min(orderTotal*offer.DiscountPercentage/100, offer.MaxDiscountAmount)
	return Pricing{
		OriginalTotal:  orderTotal,
		DiscountAmount: round2(discount),
		FinalTotal:     round2(orderTotal - discount),
		Savings:        round2(discount),
	}, nil
}

// Summarize counts offers for the admin listing.
func Summarize(list []Offer, now time.Time) Summary {
	s := Summary{
		Total: len(list),
		ByType: map[OfferType]int{
			TypeNewCustomer: 0,
			TypeCombo:       0,
			TypeLoyalty:     0,
		},
	}
	for _, o := range list {
		if o.IsActive {
			s.Active++
		}
		if o.Expired(now) {
			s.Expired++
		}
		s.ByType[o.OfferType]++
	}
	return s
}

// FilterUnexpired drops offers that are no longer valid at now.
func FilterUnexpired(list []Offer, now time.Time) []Offer {
	out := make([]Offer, 0, len(list))
	for _, o := range list {
		if !o.Expired(now) {
			out = append(out, o)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
