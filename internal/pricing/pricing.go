// Package pricing converts provider charge amounts into panel credits.
//
// Panels are sold in fixed packs: one pack costs PackPriceDollars and grants
// PanelsPerPack credits. Amounts below one pack grant nothing; larger amounts
// grant whole packs only. The rule is deterministic and monotonic so that a
// redelivered event always computes the same grant.
package pricing

// Rule is the fixed pack pricing rule.
type Rule struct {
	PackPriceDollars int64
	PanelsPerPack    int64
}

// Default matches the app's $5-per-pack pricing.
var Default = Rule{PackPriceDollars: 5, PanelsPerPack: 50}

// DollarsFromCents converts a provider minor-unit total (cents) to whole
// dollars, rounding half-up. Negative totals are treated as zero.
func DollarsFromCents(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return (cents + 50) / 100
}

// Panels returns the credits granted for a whole-dollar amount.
// Below one pack the result is 0, which the reconciler treats as a
// deliberate no-credit outcome rather than an error.
func (r Rule) Panels(dollars int64) int64 {
	if r.PackPriceDollars <= 0 || r.PanelsPerPack <= 0 {
		return 0
	}
	if dollars < r.PackPriceDollars {
		return 0
	}
	return (dollars / r.PackPriceDollars) * r.PanelsPerPack
}

// PanelsFromCents is the composition used by the reconciler: minor units in,
// panel credits out.
func (r Rule) PanelsFromCents(cents int64) int64 {
	return r.Panels(DollarsFromCents(cents))
}
