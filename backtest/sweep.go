package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Variant builds an independent runner, usually with one parameter changed.
type Variant struct {
	Name  string
	Build func() (*Runner, error)
}

type SweepResult struct {
	Name   string
	Result Result
	Err    error
}

// Sweep runs every variant, at most parallelism at a time. Each variant has
// its own broker and engine so runs stay deterministic. Results keep the
// input order; a failed run is reported in its SweepResult, not as the
// returned error.
func Sweep(ctx context.Context, variants []Variant, parallelism int) ([]SweepResult, error) {
	out := make([]SweepResult, len(variants))
	if parallelism <= 0 {
		parallelism = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, v := range variants {
		i, v := i, v
		out[i].Name = v.Name
		if v.Build == nil {
			out[i].Err = fmt.Errorf("variant %q: no builder", v.Name)
			continue
		}
		g.Go(func() error {
			runner, err := v.Build()
			if err != nil {
				out[i].Err = fmt.Errorf("variant %q: %w", v.Name, err)
				return nil
			}
			res, err := runner.Run(ctx)
			out[i].Result, out[i].Err = res, err
			return ctx.Err()
		})
	}
	return out, g.Wait()
}
