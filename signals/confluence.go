package signals

import (
	"context"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/recovery/market"
)

const (
	FactorEMATrend     = "ema_trend"
	FactorPriceVsEMA   = "price_vs_fast_ema"
	FactorRSIMomentum  = "rsi_momentum"
	FactorRSIHeadroom  = "rsi_headroom"
	FactorATRActive    = "atr_active"
	FactorCloseImpulse = "close_impulse"
)

type ConfluenceConfig struct {
	Timeframe string `yaml:"timeframe" json:"timeframe"`
	FastEMA   int    `yaml:"fast_ema" json:"fast_ema"`
	SlowEMA   int    `yaml:"slow_ema" json:"slow_ema"`
	RSIPeriod int    `yaml:"rsi_period" json:"rsi_period"`
	ATRPeriod int    `yaml:"atr_period" json:"atr_period"`

	// Overbought/oversold bounds for the headroom factor.
	RSIHigh float64 `yaml:"rsi_high" json:"rsi_high"`
	RSILow  float64 `yaml:"rsi_low" json:"rsi_low"`

	// MinScore suppresses signals with fewer agreeing factors.
	MinScore int `yaml:"min_score" json:"min_score"`
}

func DefaultConfluenceConfig() ConfluenceConfig {
	return ConfluenceConfig{
		Timeframe: "H1",
		FastEMA:   20,
		SlowEMA:   50,
		RSIPeriod: 14,
		ATRPeriod: 14,
		RSIHigh:   70,
		RSILow:    30,
		MinScore:  4,
	}
}

// Confluence scores trend, momentum and volatility factors with go-talib and
// signals in the direction of the EMA trend.
type Confluence struct {
	cfg ConfluenceConfig
}

func NewConfluence(cfg ConfluenceConfig) *Confluence {
	d := DefaultConfluenceConfig()
	if cfg.Timeframe == "" {
		cfg.Timeframe = d.Timeframe
	}
	if cfg.FastEMA <= 0 {
		cfg.FastEMA = d.FastEMA
	}
	if cfg.SlowEMA <= cfg.FastEMA {
		cfg.SlowEMA = max(d.SlowEMA, cfg.FastEMA+1)
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = d.RSIPeriod
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = d.ATRPeriod
	}
	if cfg.RSIHigh <= 0 {
		cfg.RSIHigh = d.RSIHigh
	}
	if cfg.RSILow <= 0 {
		cfg.RSILow = d.RSILow
	}
	return &Confluence{cfg: cfg}
}

// Lookback is the number of bars Evaluate needs.
func (c *Confluence) Lookback() int {
	return max(c.cfg.SlowEMA, c.cfg.RSIPeriod+1, 2*c.cfg.ATRPeriod) + 1
}

// Evaluate returns a *market.DataGapError when there is not enough history.
func (c *Confluence) Evaluate(ctx context.Context, symbol string, h History) (*Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := h.History(symbol, c.cfg.Timeframe, c.Lookback())
	if err != nil {
		return nil, err
	}

	cl := market.Closes(bars)
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i] = b.High, b.Low
	}

	last := len(cl) - 1
	fast := talib.Ema(cl, c.cfg.FastEMA)[last]
	slow := talib.Ema(cl, c.cfg.SlowEMA)[last]
	rsi := talib.Rsi(cl, c.cfg.RSIPeriod)[last]
	atr := talib.Atr(highs, lows, cl, c.cfg.ATRPeriod)

	if fast == slow || math.IsNaN(fast) || math.IsNaN(slow) {
		return nil, nil
	}
	side := market.Short
	if fast > slow {
		side = market.Long
	}
	up := side == market.Long

	factors := []string{FactorEMATrend}
	if (up && cl[last] > fast) || (!up && cl[last] < fast) {
		factors = append(factors, FactorPriceVsEMA)
	}
	if (up && rsi > 50) || (!up && rsi < 50) {
		factors = append(factors, FactorRSIMomentum)
	}
	if (up && rsi < c.cfg.RSIHigh) || (!up && rsi > c.cfg.RSILow) {
		factors = append(factors, FactorRSIHeadroom)
	}
	if atrActive(atr, c.cfg.ATRPeriod) {
		factors = append(factors, FactorATRActive)
	}
	if (up && cl[last] > cl[last-1]) || (!up && cl[last] < cl[last-1]) {
		factors = append(factors, FactorCloseImpulse)
	}

	if len(factors) < c.cfg.MinScore {
		return nil, nil
	}
	return &Signal{
		Symbol:          market.NormalizeSymbol(symbol),
		Side:            side,
		ConfluenceScore: len(factors),
		Factors:         factors,
		Time:            h.Now(),
	}, nil
}

// atrActive reports whether the latest ATR is at least the mean of the
// preceding period values.
func atrActive(atr []float64, period int) bool {
	n := len(atr)
	if n < period+1 {
		return false
	}
	sum := 0.0
	for _, v := range atr[n-1-period : n-1] {
		sum += v
	}
	mean := sum / float64(period)
	return mean > 0 && atr[n-1] >= mean
}

var _ Source = (*Confluence)(nil)
