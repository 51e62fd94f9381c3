package sim

import "github.com/rustyeddy/recovery/market"

// UnrealizedPL is (price - open) * volume * contractSize, negated for shorts.
func UnrealizedPL(l *leg, price float64, contractSize float64) float64 {
	return market.Profit(l.Side, l.OpenPrice, price, l.Volume, contractSize)
}
