package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COST ENGINE
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Round2 rounds to cents. decimal rounds half away from zero, which is
// half-up for the non-negative amounts the engine produces.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CostUnits returns the billable whole units for a booking: the raw units
// for the cost mode rounded up, so partial use bills a full unit.
func CostUnits(unit CostUnit, kind Kind, p TimePeriod) int64 {
	d := p.End().Sub(p.Start())
	switch unit {
	case CostPerMinute:
		return ceilDiv(d, time.Minute)
	case CostPerHour:
		return ceilDiv(d, time.Hour)
	case CostPerHalfDay:
		return ceilDiv(d, 12*time.Hour)
	case CostPerDay:
		switch kind {
		case KindRoom:
			// A room booking never spans days.
			return 1
		case KindResource:
			return int64(p.DaysDifference())
		}
		return 1
	default:
		return 1
	}
}

func ceilDiv(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + unit - 1) / unit)
}

// CalculateCost prices quantity units of res over p. Rooms always have
// quantity 1.
func CalculateCost(res Reservable, p TimePeriod, quantity int) decimal.Decimal {
	terms := res.BookingTerms()
	if res.Kind() == KindRoom || quantity < 1 {
		quantity = 1
	}
	units := CostUnits(terms.CostUnit, res.Kind(), p)
	cost := terms.CostPerUnit.
		Mul(decimal.NewFromInt(units)).
		Mul(decimal.NewFromInt(int64(quantity)))
	if cost.IsNegative() {
		return decimal.Zero
	}
	return Round2(cost)
}

// CancellationCost is the penalty charged when cancelling a booking that
// originally cost original. Only late cancellations are charged.
func CancellationCost(original, lateCancelPercentage decimal.Decimal, late bool) decimal.Decimal {
	if !late || lateCancelPercentage.IsZero() {
		return decimal.Zero
	}
	return Round2(original.Mul(lateCancelPercentage).Div(hundred))
}
