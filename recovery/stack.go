// Package recovery manages position stacks: a root leg plus the grid,
// hedge and DCA legs added while price moves against it, and the
// kill-switches that close the whole stack.
package recovery

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
)

type LegStatus string

const (
	LegOpen   LegStatus = "open"
	LegClosed LegStatus = "closed"
)

// Leg mirrors one broker position. The broker owns its status; the engine
// refreshes these fields before every evaluation.
type Leg struct {
	ID          string
	StackID     string
	Symbol      string
	Side        market.Side
	Level       broker.Level
	LevelNumber int

	Volume        float64 // currently held
	InitialVolume float64
	OpenPrice     float64
	OpenTime      time.Time
	// TargetPrice is the ladder price that triggered a grid leg.
	TargetPrice float64

	Status      LegStatus
	ClosePrice  float64
	CloseTime   time.Time
	CloseReason string
	Realized    float64
	Floating    float64
}

func (l *Leg) IsOpen() bool { return l.Status == LegOpen }

type State string

const (
	StateNoRecovery State = "OPEN_NO_RECOVERY"
	StateGridActive State = "OPEN_GRID_ACTIVE"
	StateHedged     State = "OPEN_HEDGED"
	StateClosed     State = "CLOSED"
)

type Status string

const (
	StackOpen   Status = "open"
	StackClosed Status = "closed"
)

// Close reasons.
const (
	ReasonDrawdownKill  = "drawdown_kill"
	ReasonProfitTarget  = "profit_target"
	ReasonTimeLimit     = "time_limit"
	ReasonReversionExit = "reversion_exit"
	ReasonManual        = "manual"
	ReasonRunEnd        = "run_end"
	ReasonIntegrity     = "integrity"
	ReasonPartialClose  = "partial_close"
)

// Stack is a root leg and its recovery legs. Grid and DCA legs keep the
// order they were added in; hedges are bounded by MaxHedges.
type Stack struct {
	ID     string
	Symbol string
	Side   market.Side
	Root   *Leg
	Grid   []*Leg
	Hedges []*Leg
	DCA    []*Leg

	// MaxAdversePips only grows while the stack is open.
	MaxAdversePips float64
	OpenTime       time.Time
	Status         Status
	CloseReason    string
	CloseTime      time.Time

	ConfluenceScore int
	Factors         []string

	milestones map[float64]bool
	// partialLeft is the volume a started milestone still has to close.
	partialLeft map[float64]decimal.Decimal
}

// Legs returns every leg: root, grid, hedges, DCA.
func (s *Stack) Legs() []*Leg {
	out := make([]*Leg, 0, 1+len(s.Grid)+len(s.Hedges)+len(s.DCA))
	out = append(out, s.Root)
	out = append(out, s.Grid...)
	out = append(out, s.Hedges...)
	out = append(out, s.DCA...)
	return out
}

func (s *Stack) OpenLegs() []*Leg {
	var out []*Leg
	for _, l := range s.Legs() {
		if l.IsOpen() {
			out = append(out, l)
		}
	}
	return out
}

// TotalVolume sums the volume of open legs.
func (s *Stack) TotalVolume() float64 {
	total := decimal.Zero
	for _, l := range s.OpenLegs() {
		total = total.Add(decimal.NewFromFloat(l.Volume))
	}
	f, _ := total.Float64()
	return f
}

// NetProfit is realized profit on every leg plus floating profit on open
// legs.
func (s *Stack) NetProfit() float64 {
	total := decimal.Zero
	for _, l := range s.Legs() {
		total = total.Add(decimal.NewFromFloat(l.Realized))
		if l.IsOpen() {
			total = total.Add(decimal.NewFromFloat(l.Floating))
		}
	}
	f, _ := total.Float64()
	return f
}

// Breakeven is the volume-weighted entry of root, grid and DCA legs.
// Hedges are excluded. Zero when none of those legs hold volume.
func (s *Stack) Breakeven() float64 {
	num, den := decimal.Zero, decimal.Zero
	for _, l := range append(append([]*Leg{s.Root}, s.Grid...), s.DCA...) {
		if !l.IsOpen() {
			continue
		}
		v := decimal.NewFromFloat(l.Volume)
		num = num.Add(decimal.NewFromFloat(l.OpenPrice).Mul(v))
		den = den.Add(v)
	}
	if den.IsZero() {
		return 0
	}
	f, _ := num.Div(den).Round(8).Float64()
	return f
}

func (s *Stack) RecoveryActive() bool {
	return len(s.Grid)+len(s.Hedges)+len(s.DCA) > 0
}

func (s *Stack) State() State {
	if s.Status == StackClosed {
		return StateClosed
	}
	for _, h := range s.Hedges {
		if h.IsOpen() {
			return StateHedged
		}
	}
	if s.RecoveryActive() {
		return StateGridActive
	}
	return StateNoRecovery
}

func (s *Stack) leg(id string) *Leg {
	for _, l := range s.Legs() {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// clone deep-copies the stack so callers can't reach engine state.
func (s *Stack) clone() Stack {
	cp := *s
	cpLeg := func(l *Leg) *Leg {
		c := *l
		return &c
	}
	cpLegs := func(ls []*Leg) []*Leg {
		if ls == nil {
			return nil
		}
		out := make([]*Leg, len(ls))
		for i, l := range ls {
			out[i] = cpLeg(l)
		}
		return out
	}
	cp.Root = cpLeg(s.Root)
	cp.Grid = cpLegs(s.Grid)
	cp.Hedges = cpLegs(s.Hedges)
	cp.DCA = cpLegs(s.DCA)
	cp.Factors = append([]string(nil), s.Factors...)
	cp.milestones = make(map[float64]bool, len(s.milestones))
	for k, v := range s.milestones {
		cp.milestones[k] = v
	}
	cp.partialLeft = make(map[float64]decimal.Decimal, len(s.partialLeft))
	for k, v := range s.partialLeft {
		cp.partialLeft[k] = v
	}
	return cp
}
