package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/market"
)

// Return codes follow the MetaTrader trade server numbering so logs read the
// same as a live terminal.
const (
	RetRejected       = 10006
	RetInvalidVolume  = 10014
	RetNoQuotes       = 10021
	RetPositionClosed = 10036
)

var _ broker.Broker = (*Engine)(nil)

// Open fills a market order. Longs fill at the ask and shorts at the bid.
func (e *Engine) Open(ctx context.Context, req broker.OpenRequest) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, err
	}
	symbol := market.NormalizeSymbol(req.Symbol)
	if !req.Side.Valid() {
		return broker.Fill{}, broker.Reject(string(OpOpen), RetRejected, fmt.Sprintf("invalid side %q", req.Side))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inst := e.cfg.Instruments.Lookup(symbol)
	volume, err := inst.NormalizeVolume(req.Volume)
	var ive *market.InvalidVolumeError
	switch {
	case errors.As(err, &ive):
		e.log.Warn("volume adjusted", "symbol", symbol, "requested", ive.Requested, "adjusted", ive.Adjusted, "reason", ive.Reason)
	case err != nil:
		return broker.Fill{}, broker.Reject(string(OpOpen), RetInvalidVolume, err.Error())
	}

	if err := e.vetoLocked(OpOpen, symbol, ""); err != nil {
		return broker.Fill{}, err
	}

	q, err := e.prices.Get(symbol)
	if err != nil {
		return broker.Fill{}, broker.Reject(string(OpOpen), RetNoQuotes, err.Error())
	}
	price := q.Bid
	if req.Side == market.Long {
		price = q.Ask
	}

	l := &leg{
		ID:         e.ids.New(e.now),
		Symbol:     symbol,
		Side:       req.Side,
		Volume:     volume,
		OpenPrice:  price,
		OpenTime:   e.now,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Meta:       req.Meta,
		Open:       true,
	}
	e.legs[l.ID] = l
	e.open = append(e.open, l)
	e.revalueLocked()

	return broker.Fill{
		LegID:     l.ID,
		Symbol:    symbol,
		Side:      l.Side,
		Volume:    volume,
		Price:     price,
		Time:      e.now,
		Remaining: volume,
	}, nil
}

// Close closes the whole leg at the current bid.
func (e *Engine) Close(ctx context.Context, legID string, reason string) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, err
	}
	if reason == "" {
		reason = "manual"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l, q, err := e.closableLocked(OpClose, legID)
	if err != nil {
		return broker.Fill{}, err
	}
	fill, err := e.closeLocked(l, l.Volume, q.Bid, reason)
	e.revalueLocked()
	return fill, err
}

// PartialClose closes part of a leg. Asking for at least the held volume
// closes the leg completely.
func (e *Engine) PartialClose(ctx context.Context, legID string, volume float64, reason string) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, err
	}
	if reason == "" {
		reason = "partial_close"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l, q, err := e.closableLocked(OpPartialClose, legID)
	if err != nil {
		return broker.Fill{}, err
	}

	inst := e.cfg.Instruments.Lookup(l.Symbol)
	if volume <= 0 {
		return broker.Fill{}, broker.Reject(string(OpPartialClose), RetInvalidVolume, market.ErrNonPositiveVolume.Error())
	}
	if volume < l.Volume {
		if v, verr := inst.NormalizeVolume(volume); verr == nil || errors.As(verr, new(*market.InvalidVolumeError)) {
			volume = v
		}
	}
	if volume >= l.Volume {
		volume = l.Volume
	}

	fill, err := e.closeLocked(l, volume, q.Bid, reason)
	e.revalueLocked()
	return fill, err
}

// CloseAll closes every open leg in the order they were opened.
func (e *Engine) CloseAll(ctx context.Context, reason string) ([]broker.Fill, error) {
	if reason == "" {
		reason = "manual"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		fills []broker.Fill
		errs  []error
	)
	for _, l := range append([]*leg(nil), e.open...) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		q, err := e.prices.Get(l.Symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("close all %s: %w", l.ID, err))
			continue
		}
		fill, err := e.closeLocked(l, l.Volume, q.Bid, reason)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fills = append(fills, fill)
	}
	e.revalueLocked()
	return fills, errors.Join(errs...)
}

func (e *Engine) Position(ctx context.Context, legID string) (broker.Position, error) {
	_ = ctx

	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.legs[legID]
	if !ok {
		return broker.Position{}, fmt.Errorf("%w: %s", broker.ErrUnknownPosition, legID)
	}
	return e.positionLocked(l), nil
}

func (e *Engine) Positions(ctx context.Context) ([]broker.Position, error) {
	_ = ctx

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Position, 0, len(e.open))
	for _, l := range e.open {
		out = append(out, e.positionLocked(l))
	}
	return out, nil
}

func (e *Engine) Account(ctx context.Context) (broker.Account, error) {
	_ = ctx

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

func (e *Engine) Quote(ctx context.Context, symbol string) (broker.Quote, error) {
	_ = ctx
	return e.prices.Get(market.NormalizeSymbol(symbol))
}

func (e *Engine) positionLocked(l *leg) broker.Position {
	mark := 0.0
	if q, err := e.prices.Get(l.Symbol); err == nil {
		mark = q.Bid
	}
	return l.position(mark, e.cfg.Instruments.Lookup(l.Symbol).ContractSize)
}

func (e *Engine) vetoLocked(op Op, symbol, legID string) error {
	if e.reject == nil {
		return nil
	}
	err := e.reject(op, symbol, legID)
	if err == nil {
		return nil
	}
	if errors.Is(err, broker.ErrExecutionRejected) {
		return err
	}
	return broker.Reject(string(op), RetRejected, err.Error())
}

func (e *Engine) closableLocked(op Op, legID string) (*leg, broker.Quote, error) {
	l, ok := e.legs[legID]
	if !ok {
		return nil, broker.Quote{}, fmt.Errorf("%w: %s", broker.ErrUnknownPosition, legID)
	}
	if !l.Open {
		return nil, broker.Quote{}, broker.Reject(string(op), RetPositionClosed, fmt.Sprintf("position %s already closed", legID))
	}
	if err := e.vetoLocked(op, l.Symbol, legID); err != nil {
		return nil, broker.Quote{}, err
	}
	q, err := e.prices.Get(l.Symbol)
	if err != nil {
		return nil, broker.Quote{}, broker.Reject(string(op), RetNoQuotes, err.Error())
	}
	return l, q, nil
}

// closeLocked realizes volume of l at price, books it to the balance and
// writes the ledger record. Closing the full volume closes the leg.
func (e *Engine) closeLocked(l *leg, volume, price float64, reason string) (broker.Fill, error) {
	inst := e.cfg.Instruments.Lookup(l.Symbol)
	profit := market.Profit(l.Side, l.OpenPrice, price, volume, inst.ContractSize)
	full := volume >= l.Volume

	tradeID := l.ID
	if !full {
		l.partials++
		tradeID = fmt.Sprintf("%s.%d", l.ID, l.partials)
	}

	e.acct.Balance = market.Round(e.acct.Balance+profit, 8)
	l.Realized = market.Round(l.Realized+profit, 8)
	l.Volume = market.SubVolume(l.Volume, volume)

	if full {
		l.Volume = 0
		l.Open = false
		l.ClosePrice = price
		l.CloseTime = e.now
		l.CloseReason = reason
		e.removeOpenLocked(l)
	}

	rec := journal.TradeRecord{
		TradeID:     tradeID,
		LegID:       l.ID,
		Symbol:      l.Symbol,
		Side:        l.Side,
		Volume:      volume,
		EntryPrice:  l.OpenPrice,
		EntryTime:   l.OpenTime,
		ExitPrice:   price,
		ExitTime:    e.now,
		Profit:      profit,
		Level:       l.Meta.Level,
		LevelNumber: l.Meta.LevelNumber,
		StackID:     l.Meta.StackID,
		Reason:      reason,
	}
	fill := broker.Fill{
		LegID:     l.ID,
		Symbol:    l.Symbol,
		Side:      l.Side,
		Volume:    volume,
		Price:     price,
		Time:      e.now,
		Profit:    profit,
		Remaining: l.Volume,
		Closed:    full,
	}
	e.ledger = append(e.ledger, rec)
	if err := e.journal.RecordTrade(rec); err != nil {
		return fill, fmt.Errorf("journal trade %s: %w", tradeID, err)
	}
	return fill, nil
}

func (e *Engine) removeOpenLocked(l *leg) {
	for i, o := range e.open {
		if o == l {
			e.open = append(e.open[:i], e.open[i+1:]...)
			return
		}
	}
}
