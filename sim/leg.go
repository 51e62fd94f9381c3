package sim

import (
	"time"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
)

type leg struct {
	ID         string
	Symbol     string
	Side       market.Side
	Volume     float64
	OpenPrice  float64
	OpenTime   time.Time
	StopLoss   *float64
	TakeProfit *float64
	Meta       broker.Meta

	// Realized
	Realized    float64
	ClosePrice  float64
	CloseTime   time.Time
	CloseReason string
	Open        bool

	partials int
}

func (l *leg) position(mark, contractSize float64) broker.Position {
	p := broker.Position{
		ID:          l.ID,
		Symbol:      l.Symbol,
		Side:        l.Side,
		Volume:      l.Volume,
		OpenPrice:   l.OpenPrice,
		OpenTime:    l.OpenTime,
		StopLoss:    l.StopLoss,
		TakeProfit:  l.TakeProfit,
		Meta:        l.Meta,
		Open:        l.Open,
		Realized:    l.Realized,
		ClosePrice:  l.ClosePrice,
		CloseTime:   l.CloseTime,
		CloseReason: l.CloseReason,
	}
	if l.Open && mark > 0 {
		p.Profit = UnrealizedPL(l, mark, contractSize)
	}
	return p
}
