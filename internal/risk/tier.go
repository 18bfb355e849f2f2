package risk

import (
	"fmt"
	"strings"
)

// Tier is the closed set of risk levels. The zero value is TierLow.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier accepts "low", "medium" or "high".
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	default:
		return TierLow, fmt.Errorf("risk: unknown tier %q", s)
	}
}

// MarshalText encodes the tier by name for JSON and database columns.
func (t Tier) MarshalText() ([]byte, error) {
	if t < TierLow || t > TierHigh {
		return nil, fmt.Errorf("risk: invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func maxTier(a, b Tier) Tier {
	if b > a {
		return b
	}
	return a
}
