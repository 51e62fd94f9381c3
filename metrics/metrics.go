// Package metrics exposes Prometheus counters and gauges for a run:
//
//	recovery_stacks_opened_total{symbol}
//	recovery_stacks_closed_total{reason}
//	recovery_legs_opened_total{level}
//	recovery_orders_rejected_total{op}
//	recovery_integrity_errors_total
//	recovery_open_stacks
//	recovery_equity
//	recovery_balance
//
// Each Recorder owns its registry so concurrent backtests never share
// series. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	reg *prometheus.Registry

	stacksOpened *prometheus.CounterVec
	stacksClosed *prometheus.CounterVec
	legsOpened   *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	integrity    prometheus.Counter

	openStacks prometheus.Gauge
	equity     prometheus.Gauge
	balance    prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stacksOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_stacks_opened_total",
				Help: "Stacks opened from entry signals",
			},
			[]string{"symbol"},
		),
		stacksClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_stacks_closed_total",
				Help: "Stacks closed split by reason",
			},
			[]string{"reason"},
		),
		legsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_legs_opened_total",
				Help: "Legs opened split by level type",
			},
			[]string{"level"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_orders_rejected_total",
				Help: "Orders the broker refused",
			},
			[]string{"op"},
		),
		integrity: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recovery_integrity_errors_total",
				Help: "Legs or stacks purged for referencing a missing stack",
			},
		),
		openStacks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recovery_open_stacks",
				Help: "Stacks currently open",
			},
		),
		equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recovery_equity",
				Help: "Account equity at the last step",
			},
		),
		balance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recovery_balance",
				Help: "Realized account balance at the last step",
			},
		),
	}

	r.reg.MustRegister(r.stacksOpened, r.stacksClosed, r.legsOpened, r.rejections)
	r.reg.MustRegister(r.integrity, r.openStacks, r.equity, r.balance)
	return r
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) StackOpened(symbol string) {
	if r == nil {
		return
	}
	r.stacksOpened.WithLabelValues(symbol).Inc()
	r.openStacks.Inc()
}

func (r *Recorder) StackClosed(reason string) {
	if r == nil {
		return
	}
	r.stacksClosed.WithLabelValues(reason).Inc()
	r.openStacks.Dec()
}

func (r *Recorder) LegOpened(level string) {
	if r == nil {
		return
	}
	r.legsOpened.WithLabelValues(level).Inc()
}

func (r *Recorder) OrderRejected(op string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(op).Inc()
}

func (r *Recorder) IntegrityError() {
	if r == nil {
		return
	}
	r.integrity.Inc()
}

func (r *Recorder) SetAccount(balance, equity float64) {
	if r == nil {
		return
	}
	r.balance.Set(balance)
	r.equity.Set(equity)
}

// WriteFile writes every series in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
