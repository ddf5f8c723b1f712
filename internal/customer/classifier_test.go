package customer

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
)

func TestProfileOfSeedPhones(t *testing.T) {
	tests := []struct {
		phone          string
		tier           Tier
		stats          Stats
		ordersNeeded   int
		spendingNeeded int
	}{
		{"+905501234567", Bronze, Stats{4, 191, 48}, 1, 9},
		{"+905503456789", Bronze, Stats{3, 120, 40}, 2, 80},
		{"+905509876543", Silver, Stats{19, 1486, 78}, 0, 0},
		{"+905507654321", Gold, Stats{36, 3321, 92}, 0, 0},
		{"+905502345678", Platinum, Stats{56, 5281, 94}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			p := ProfileOf(tt.phone)
			if p.Tier != tt.tier {
				t.Fatalf("tier: expected %s, got %s", tt.tier, p.Tier)
			}
			if p.Stats != tt.stats {
				t.Fatalf("stats: expected %+v, got %+v", tt.stats, p.Stats)
			}
			if p.TierName != tt.tier.DisplayName() {
				t.Fatalf("tier name: got %q", p.TierName)
			}

			req := p.NextTierRequirement
			if req == nil {
				t.Fatal("requirement should never be nil")
			}
			if req.OrdersNeeded != tt.ordersNeeded || req.SpendingNeeded != tt.spendingNeeded {
				t.Fatalf("requirement: got %+v", req)
			}
			if tt.tier == Platinum {
				if req.NextTier != nil {
					t.Fatalf("platinum has no next tier, got %s", *req.NextTier)
				}
			} else if req.NextTier == nil || *req.NextTier != tt.tier+1 {
				t.Fatalf("unexpected next tier: %v", req.NextTier)
			}
		})
	}
}

func TestClassificationIsDeterministic(t *testing.T) {
	phone := "+905504938268"
	first := ProfileOf(phone)
	for i := 0; i < 10; i++ {
		if got := ProfileOf(phone); got.Tier != first.Tier || got.Stats != first.Stats {
			t.Fatalf("profile changed between calls: %+v vs %+v", first, got)
		}
	}
}

func TestStatsStayInTierRanges(t *testing.T) {
	phones := []string{
		"+905500000000", "+905502469134", "+905503703701", "+905506172835",
		"+905509876536", "+905507037010", "+905503333309", "+905508148113",
	}
	for _, phone := range phones {
		tier := TierOf(phone)
		m := models[tier]
		s := StatsOf(phone)
		if s.TotalOrders < m.baseOrders || s.TotalOrders >= m.baseOrders+int(m.orderSpread) {
			t.Errorf("%s: orders %d outside %s range", phone, s.TotalOrders, tier)
		}
		if s.TotalSpent <= 0 || s.AverageOrderValue <= 0 {
			t.Errorf("%s: non-positive spend %+v", phone, s)
		}
	}
}

func TestAverageDerivesFromRoundedTotal(t *testing.T) {
	if got := StatsOf("+905500000141"); got != (Stats{TotalOrders: 2, TotalSpent: 71, AverageOrderValue: 36}) {
		t.Fatalf("unexpected stats %+v", got)
	}

	for i := 0; i < 20000; i++ {
		phone := fmt.Sprintf("+90550%07d", i)
		s := StatsOf(phone)
		if s.TotalOrders < 1 {
			t.Fatalf("%s: orders %d", phone, s.TotalOrders)
		}
		want := int(math.Round(float64(s.TotalSpent) / float64(s.TotalOrders)))
		if s.AverageOrderValue != want {
			t.Fatalf("%s: average %d, want round(%d/%d)=%d", phone, s.AverageOrderValue, s.TotalSpent, s.TotalOrders, want)
		}
	}
}

func TestNextTierRequirementClampsAtZero(t *testing.T) {
	req := NextTierRequirement(Bronze, Stats{TotalOrders: 50, TotalSpent: 5000})
	if req.OrdersNeeded != 0 || req.SpendingNeeded != 0 {
		t.Fatalf("expected clamped shortfalls, got %+v", req)
	}
	if *req.NextTier != Silver {
		t.Fatalf("expected silver, got %s", *req.NextTier)
	}
}

func TestTierJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Tiers []Tier `json:"tiers"`
	}{[]Tier{Bronze, Platinum}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"tiers":["bronze","platinum"]}` {
		t.Fatalf("unexpected json %s", b)
	}

	var decoded []Tier
	if err := json.Unmarshal([]byte(`["gold","silver"]`), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[0] != Gold || decoded[1] != Silver {
		t.Fatalf("unexpected decode %v", decoded)
	}

	if err := json.Unmarshal([]byte(`["diamond"]`), &decoded); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestPlatinumRequirementJSON(t *testing.T) {
	b, err := json.Marshal(NextTierRequirement(Platinum, Stats{}))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"nextTier":null,"ordersNeeded":0,"spendingNeeded":0}` {
		t.Fatalf("unexpected json %s", b)
	}
}
