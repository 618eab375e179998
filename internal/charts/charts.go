// Package charts renders the dashboard charts as standalone HTML pages with
// go-echarts: the completeness radar, the event bar chart and the score
// distribution.
package charts

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gpsanalyzer/telemetry.report/internal/view"
)

// AssetsHost serves the echarts javascript.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var eventColors = map[string]string{
	"Ignition On":        "#10b981",
	"Ignition Off":       "#10b981",
	"Harsh Breaking":     "#f59e0b",
	"Harsh Acceleration": "#f59e0b",
	"Harsh Turn":         "#f59e0b",
	"SOS":                "#ef4444",
}

func initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle:  title,
		Width:      "100%",
		Height:     "420px",
		AssetsHost: AssetsHost,
	})
}

// Radar builds the data completeness radar.
func Radar(axes []view.RadarAxis) *charts.Radar {
	indicators := make([]*opts.Indicator, len(axes))
	values := make([]float32, len(axes))
	for i, a := range axes {
		indicators[i] = &opts.Indicator{Name: a.Label, Min: 0, Max: 100}
		values[i] = float32(a.Value)
	}
	radar := charts.NewRadar()
	radar.SetGlobalOptions(
		initOpts("Data completeness"),
		charts.WithTitleOpts(opts.Title{Title: "Data completeness", Subtitle: "% of reports with the field present"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithRadarComponentOpts(opts.RadarComponent{
			Indicator:   indicators,
			SplitNumber: 4,
		}),
	)
	radar.AddSeries("Complete %", []opts.RadarData{{Name: "Complete %", Value: values}},
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#3b82f6"}),
	)
	return radar
}

// Events builds the event counts bar chart.
func Events(events []view.EventCount, device string) *charts.Bar {
	x := make([]string, len(events))
	y := make([]opts.BarData, len(events))
	for i, e := range events {
		x[i] = e.Event
		y[i] = opts.BarData{Value: e.Count, ItemStyle: &opts.ItemStyle{Color: eventColors[e.Event]}}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts("Events"),
		charts.WithTitleOpts(opts.Title{Title: "Events", Subtitle: "device=" + device}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)
	bar.SetXAxis(x).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// Scores builds the score distribution histogram.
func Scores(scores []float64) *charts.Bar {
	sum := SummarizeScores(scores)
	counts := ScoreHistogram(scores)
	x := make([]string, len(counts))
	y := make([]opts.BarData, len(counts))
	for i, c := range counts {
		lo := scoreBucketEdges[i]
		x[i] = fmt.Sprintf("%.0f-%.0f", lo, lo+10)
		y[i] = opts.BarData{Value: c}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts("Quality scores"),
		charts.WithTitleOpts(opts.Title{
			Title: "Quality score distribution",
			Subtitle: fmt.Sprintf("n=%d mean=%.1f sd=%.1f median=%.1f range=%.1f..%.1f",
				sum.Count, sum.Mean, sum.StdDev, sum.Median, sum.Min, sum.Max),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("devices", y)
	return bar
}

// RenderPage writes an HTML page with the charts of v.
func RenderPage(w io.Writer, v *view.View, scores []float64) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(
		Radar(v.Radar),
		Events(v.Events, v.SelectedDevice),
		Scores(scores),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}
