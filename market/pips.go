package market

import (
	"math"

	"github.com/shopspring/decimal"
)

// Price arithmetic goes through decimal so that a move of exactly eight pips
// counts as 8 and not 7.999999.

func dec(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func decToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// PipsBetween returns (to - from) / pip.
func PipsBetween(from, to, pip float64) float64 {
	if pip <= 0 {
		return 0
	}
	return decToFloat(dec(to).Sub(dec(from)).Div(dec(pip)))
}

// AdversePips is how far price has moved against a position opened at
// entry. Negative values mean the position is in profit.
func AdversePips(side Side, entry, price, pip float64) float64 {
	if side == Short {
		return PipsBetween(entry, price, pip)
	}
	return PipsBetween(price, entry, pip)
}

// OffsetPrice returns price + pips*pip.
func OffsetPrice(price, pips, pip float64) float64 {
	return decToFloat(dec(price).Add(dec(pips).Mul(dec(pip))))
}

// FloorDiv returns floor(a / b), or 0 when b is not positive.
func FloorDiv(a, b float64) int {
	if b <= 0 {
		return 0
	}
	return int(dec(a).Div(dec(b)).Floor().IntPart())
}

// Profit is (exit - entry) * volume * contractSize, negated for shorts.
func Profit(side Side, entry, exit, volume, contractSize float64) float64 {
	p := dec(exit).Sub(dec(entry)).Mul(dec(volume)).Mul(dec(contractSize))
	if side == Short {
		p = p.Neg()
	}
	return decToFloat(p)
}

// Round rounds v to places decimal places.
func Round(v float64, places int32) float64 {
	return decToFloat(dec(v).Round(places))
}
