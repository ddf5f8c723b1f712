// Package customer derives a deterministic loyalty tier and synthetic order
// history from a phone number.
package customer

import (
	"crypto/md5"
	"encoding/binary"
	"math"
)

type Stats struct {
	TotalOrders       int `json:"totalOrders"`
	TotalSpent        int `json:"totalSpent"`
	AverageOrderValue int `json:"averageOrderValue"`
}

// Requirement describes what a customer still needs for the next tier.
// NextTier is nil at the top tier.
type Requirement struct {
	NextTier       *Tier `json:"nextTier"`
	OrdersNeeded   int   `json:"ordersNeeded"`
	SpendingNeeded int   `json:"spendingNeeded"`
}

type Profile struct {
	Phone               string       `json:"phone"`
	Tier                Tier         `json:"tier"`
	TierName            string       `json:"tierName"`
	Stats               Stats        `json:"stats"`
	NextTierRequirement *Requirement `json:"nextTierRequirement"`
}

type statsModel struct {
	baseOrders  int
	orderSpread float64
	baseRate    float64
	rateSpread  float64
}

var models = [...]statsModel{
	Bronze:   {1, 5, 25, 35},
	Silver:   {5, 15, 35, 45},
	Gold:     {15, 25, 45, 55},
	Platinum: {30, 50, 55, 75},
}

type threshold struct {
	orders   int
	spending int
}

var nextThresholds = map[Tier]threshold{
	Bronze: {5, 200},
	Silver: {15, 500},
	Gold:   {30, 1000},
}

func digest(phone string) [md5.Size]byte {
	return md5.Sum([]byte(phone))
}

func tierFromDigest(d [md5.Size]byte) Tier {
	return Tier(d[0] / 64)
}

// TierOf buckets the first byte of the phone's MD5 digest into four equal ranges.
func TierOf(phone string) Tier {
	return tierFromDigest(digest(phone))
}

func StatsOf(phone string) Stats {
	d := digest(phone)
	m := models[tierFromDigest(d)]

	seed := binary.BigEndian.Uint32(d[:4])
	r := float64(seed%1000) / 1000

	orders := m.baseOrders + int(math.Floor(r*m.orderSpread))
	spent := int(math.Round(float64(orders) * (m.baseRate + r*m.rateSpread)))

	return Stats{
		TotalOrders:       orders,
		TotalSpent:        spent,
		AverageOrderValue: int(math.Round(float64(spent) / float64(orders))),
	}
}

// NextTierRequirement clamps shortfalls at zero.
func NextTierRequirement(tier Tier, stats Stats) *Requirement {
	th, ok := nextThresholds[tier]
	if !ok {
		return &Requirement{}
	}
	next := tier + 1
	return &Requirement{
		NextTier:       &next,
		OrdersNeeded:   max(0, th.orders-stats.TotalOrders),
		SpendingNeeded: max(0, th.spending-stats.TotalSpent),
	}
}

func ProfileOf(phone string) Profile {
	tier := TierOf(phone)
	stats := StatsOf(phone)
	return Profile{
		Phone:               phone,
		Tier:                tier,
		TierName:            tier.DisplayName(),
		Stats:               stats,
		NextTierRequirement: NextTierRequirement(tier, stats),
	}
}
