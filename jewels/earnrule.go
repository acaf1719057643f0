/*
earnrule.go - Booking-value to jewels conversion rules

PURPOSE:
  Defines how much a booking earns. Rules live in the store and are
  managed through the admin API; the Awarder (award.go) applies the
  active rule when a booking completes.

PRECISION:
  Booking values are currency amounts and rates can be fractional
  (e.g. 2.5 jewels per euro), so the conversion runs on
  decimal.Decimal and only the final jewel count is integral. The
  rounding mode is part of the rule, not an implementation accident.

EXPIRY:
  Each rule carries its own expiry horizon for the jewels it mints.
  365 days is the platform default, but it is configuration - tier
  bonuses or promotions may want different horizons.
*/
package jewels

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultExpiryDays is the platform default horizon for earned jewels.
const DefaultExpiryDays = 365

// RoundingMode selects how fractional jewel results are settled.
type RoundingMode string

const (
	// RoundFloor truncates toward zero: the guest never gets the
	// benefit of the doubt on a fraction.
	RoundFloor RoundingMode = "floor"
	// RoundNearest rounds half away from zero.
	RoundNearest RoundingMode = "nearest"
)

// EarnRule converts booking value into jewels.
type EarnRule struct {
	ID   RuleID
	Name string

	// JewelsPerUnit is the rate per unit of booking currency.
	JewelsPerUnit decimal.Decimal

	Rounding RoundingMode

	// ExpiryDays is the horizon for jewels minted under this rule.
	// 0 = never expire.
	ExpiryDays int

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JewelsFor converts a booking value to a jewel count under this rule.
// Negative booking values yield zero, never a negative earn.
func (r EarnRule) JewelsFor(bookingValue decimal.Decimal) Jewels {
	if bookingValue.IsNegative() {
		return 0
	}
	raw := bookingValue.Mul(r.JewelsPerUnit)
	switch r.Rounding {
	case RoundNearest:
		return Jewels(raw.Round(0).IntPart())
	default:
		return Jewels(raw.Floor().IntPart())
	}
}

// ExpiryFrom returns the expiry timestamp for jewels minted at 'at',
// or nil when the rule's jewels never expire.
func (r EarnRule) ExpiryFrom(at time.Time) *time.Time {
	if r.ExpiryDays <= 0 {
		return nil
	}
	t := at.AddDate(0, 0, r.ExpiryDays)
	return &t
}

// DefaultEarnRule is used when no rule has been configured yet:
// 1 jewel per currency unit, floored, expiring after a year.
func DefaultEarnRule() EarnRule {
	return EarnRule{
		ID:            RuleID("default"),
		Name:          "Standard booking reward",
		JewelsPerUnit: decimal.NewFromInt(1),
		Rounding:      RoundFloor,
		ExpiryDays:    DefaultExpiryDays,
		Active:        true,
	}
}
