package customer

import (
	"errors"
	"fmt"
)

// Tier is a loyalty level. Higher values are better customers.
type Tier int

const (
	Bronze Tier = iota
	Silver
	Gold
	Platinum
)

var ErrUnknownTier = errors.New("unknown customer tier")

var tierNames = [...]string{"bronze", "silver", "gold", "platinum"}

var tierDisplayNames = [...]string{"New Customer", "Silver Customer", "Gold Customer", "Platinum Customer"}

func (t Tier) valid() bool {
	return t >= Bronze && t <= Platinum
}

func (t Tier) String() string {
	if !t.valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// DisplayName is the customer-facing label.
func (t Tier) DisplayName() string {
	if !t.valid() {
		return ""
	}
	return tierDisplayNames[t]
}

func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if name == s {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
