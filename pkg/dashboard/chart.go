// Package dashboard renders the merged session state as an interactive HTML
// page and as a terminal status table.
package dashboard

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/testrun"
)

const (
	fullZoomPct    = 100
	timeAxisLayout = "15:04:05"

	seriesInputs       = "inputs"
	seriesBehaviors    = "behaviors"
	seriesFingerprints = "fingerprints"
)

// seriesPalette is indexed by the test's position in the sorted test list so
// that a test keeps its color across refreshes regardless of arrival order.
var seriesPalette = []string{
	"#5470c6", "#91cc75", "#fac858", "#ee6666", "#73c0de",
	"#3ba272", "#fc8452", "#9a60b4", "#ea7ccc",
}

// PaletteColor returns the stable series color for the test at the given
// position in the sorted test list.
func PaletteColor(sortedIndex int) string {
	return seriesPalette[sortedIndex%len(seriesPalette)]
}

// TimelineChart builds one line chart for a single test: cumulative inputs,
// behaviors, and fingerprints over the merged report sequence.
func TimelineChart(tr *testrun.Test, color string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    tr.ID(),
			Subtitle: fmt.Sprintf("%d reports merged", len(tr.Linear())),
			Left:     "2%",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "5px", Left: "40%"}),
		charts.WithGridOpts(opts.Grid{
			Top: "15%", Bottom: "10%", Left: "5%", Right: "5%",
			ContainLabel: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: fullZoomPct},
			opts.DataZoom{Type: "inside"},
		),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)

	linear := tr.Linear()
	prefix := tr.CountsPrefix(time.Time{})

	labels := make([]string, len(linear))
	inputs := make([]opts.LineData, len(linear))
	behaviors := make([]opts.LineData, len(linear))
	fingerprints := make([]opts.LineData, len(linear))

	maxBehaviors := 0
	maxFingerprints := 0

	for i, r := range linear {
		labels[i] = r.TimestampMono.Format(timeAxisLayout)
		inputs[i] = opts.LineData{Value: prefix[i].Sum()}

		// Counter series plot the running maximum so that replay reports
		// spliced in retroactively cannot make the line dip.
		if r.Behaviors > maxBehaviors {
			maxBehaviors = r.Behaviors
		}

		if r.Fingerprints > maxFingerprints {
			maxFingerprints = r.Fingerprints
		}

		behaviors[i] = opts.LineData{Value: maxBehaviors}
		fingerprints[i] = opts.LineData{Value: maxFingerprints}
	}

	line.SetXAxis(labels)
	line.AddSeries(seriesInputs, inputs,
		charts.WithLineStyleOpts(opts.LineStyle{Color: color}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
	)
	line.AddSeries(seriesBehaviors, behaviors)
	line.AddSeries(seriesFingerprints, fingerprints)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line
}

// RenderPage writes the full HTML dashboard for the given sorted test list.
func RenderPage(w io.Writer, title string, tests []*testrun.Test) error {
	page := components.NewPage()
	page.PageTitle = title
	page.SetLayout(components.PageCenterLayout)

	for i, tr := range tests {
		page.AddCharts(TimelineChart(tr, PaletteColor(i)))
	}

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render dashboard page: %w", err)
	}

	return nil
}
