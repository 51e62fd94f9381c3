package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/rustyeddy/recovery/journal"
)

// RenderEquityHTML writes a self-contained page with balance and equity
// lines.
func RenderEquityHTML(w io.Writer, title string, equity []journal.EquitySnapshot) error {
	if len(equity) == 0 {
		return fmt.Errorf("report: empty equity curve")
	}

	xs := make([]string, 0, len(equity))
	eq := make([]opts.LineData, 0, len(equity))
	bal := make([]opts.LineData, 0, len(equity))
	for _, e := range equity {
		xs = append(xs, e.Time.UTC().Format(time.DateTime))
		eq = append(eq, opts.LineData{Value: e.Equity})
		bal = append(bal, opts.LineData{Value: e.Balance})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("Equity", eq).
		AddSeries("Balance", bal).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

func WriteEquityHTML(path, title string, equity []journal.EquitySnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderEquityHTML(f, title, equity); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
