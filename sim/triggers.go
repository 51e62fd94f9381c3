package sim

import "github.com/rustyeddy/recovery/market"

func hitStopLoss(l *leg, price float64) bool {
	if l.StopLoss == nil {
		return false
	}
	if l.Side == market.Long {
		return price <= *l.StopLoss
	}
	return price >= *l.StopLoss
}

func hitTakeProfit(l *leg, price float64) bool {
	if l.TakeProfit == nil {
		return false
	}
	if l.Side == market.Long {
		return price >= *l.TakeProfit
	}
	return price <= *l.TakeProfit
}
