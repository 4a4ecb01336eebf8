/*
pricing.go - Prebooking premiums and payout economics

PREBOOK PREMIUM:
  A member holding an approved prebooked payout month pays a 20% premium on
  the base monthly share for every month on or after the prebooked month.
  Months strictly before it stay at the base rate. Comparison is by month
  index (year*12 + month).

PAYOUT:
  The member who wins a month receives share * (1 - commission/100). The
  group's configurable ForemanCommission is the single source of truth; no
  fixed split exists anywhere in this module.
*/
package chit

import "github.com/shopspring/decimal"

// PrebookPremiumRate is the surcharge applied from the prebooked month
// onward: 20% of the base monthly share.
var PrebookPremiumRate = decimal.NewFromFloat(0.20)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// MonthlyDue is the base monthly obligation: share / tenure, rounded
// half-up to the nearest currency unit. Over a full tenure the rounded dues
// sum to the share within a tolerance of tenure units.
func MonthlyDue(share Money, tenure int) Money {
	return share.Div(decimal.NewFromInt(int64(tenure))).Round()
}

// AmountForMonth returns what a member owes for one ledger month, given
// their base monthly due and their prebooked month (nil when they hold
// none). Months on or after the prebooked month carry the premium.
func AmountForMonth(base Money, month MonthKey, preBooked *MonthKey) Money {
	if preBooked == nil || month.Index() < preBooked.Index() {
		return base
	}
	return base.Mul(one.Add(PrebookPremiumRate)).Round()
}

// Payout is the amount handed to the month's winner after the foreman's
// cut: share * (1 - commission/100).
func Payout(share Money, commissionPercent decimal.Decimal) Money {
	fraction := one.Sub(commissionPercent.Div(hundred))
	return share.Mul(fraction).Round()
}
