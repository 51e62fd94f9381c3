package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// PlannedRisk is the account loss if price moves stopPips against volume lots.
func PlannedRisk(volume, stopPips, pipValuePerLot float64) float64 {
	return math.Abs(volume * stopPips * pipValuePerLot)
}

func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}

// LotSize sizes a position so that a stopPips move costs riskPct percent of
// equity, floored to lotStep. It returns 0 when inputs cannot produce a size.
func LotSize(equity, riskPct, stopPips, pipValuePerLot, lotStep float64) float64 {
	if equity <= 0 || riskPct <= 0 || stopPips <= 0 || pipValuePerLot <= 0 {
		return 0
	}
	if lotStep <= 0 {
		lotStep = 0.01
	}
	riskAmt := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(riskPct)).Div(decimal.NewFromInt(100))
	perLot := decimal.NewFromFloat(stopPips).Mul(decimal.NewFromFloat(pipValuePerLot))
	step := decimal.NewFromFloat(lotStep)

	lots := riskAmt.Div(perLot).Div(step).Floor().Mul(step)
	f, _ := lots.Float64()
	return f
}
