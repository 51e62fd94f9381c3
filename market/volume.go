package market

import "math"

// NormalizeVolume rounds v to the nearest lot step and clamps it to the
// instrument's min and max lot. When the result differs from v the adjusted
// value is returned together with an *InvalidVolumeError; callers may log it
// and keep going. Non-positive input is rejected outright.
func (in Instrument) NormalizeVolume(v float64) (float64, error) {
	if math.IsNaN(v) || v <= 0 {
		return 0, ErrNonPositiveVolume
	}

	step := in.LotStep
	if step <= 0 {
		step = DefaultInstrument.LotStep
	}
	out := dec(v).Div(dec(step)).Round(0).Mul(dec(step))

	reason := ""
	if !out.Equal(dec(v)) {
		reason = "rounded to lot step"
	}
	if in.MinLot > 0 && out.LessThan(dec(in.MinLot)) {
		out = dec(in.MinLot)
		reason = "raised to minimum lot"
	}
	if in.MaxLot > 0 && out.GreaterThan(dec(in.MaxLot)) {
		out = dec(in.MaxLot)
		reason = "capped at maximum lot"
	}

	adjusted := decToFloat(out)
	if reason != "" {
		return adjusted, &InvalidVolumeError{Symbol: in.Symbol, Requested: v, Adjusted: adjusted, Reason: reason}
	}
	return adjusted, nil
}

// AddVolumes sums lots without float drift.
func AddVolumes(vs ...float64) float64 {
	total := dec(0)
	for _, v := range vs {
		total = total.Add(dec(v))
	}
	return decToFloat(total)
}

// SubVolume returns a - b without float drift.
func SubVolume(a, b float64) float64 {
	return decToFloat(dec(a).Sub(dec(b)))
}
