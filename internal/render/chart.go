// Package render turns analysis results into charts and HTML fragments.
package render

import (
	"bytes"
	"fmt"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Chart text shared by the interactive and raster renderings.
const (
	RiskChartTitle = "Academic risk by subject"
	RiskAxisLabel  = "Risk level"
	riskAxisMax    = 5
)

// DefaultAssetsHost serves the echarts javascript bundle.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ChartOptions controls the interactive chart page.
type ChartOptions struct {
	AssetsHost string
	Width      string
	Height     string
	Subtitle   string
}

func (o ChartOptions) withDefaults() ChartOptions {
	if o.AssetsHost == "" {
		o.AssetsHost = DefaultAssetsHost
	}
	if o.Width == "" {
		o.Width = "100%"
	}
	if o.Height == "" {
		o.Height = "460px"
	}
	return o
}

// RiskChart builds a horizontal bar chart with one bar per subject coloured by severity.
func RiskChart(risks analysis.RiskVector, o ChartOptions) *charts.Bar {
	o = o.withDefaults()

	data := make([]opts.BarData, analysis.SubjectCount)
	for i, risk := range risks {
		data[i] = opts.BarData{
			Name:      analysis.Subjects()[i],
			Value:     risk,
			ItemStyle: &opts.ItemStyle{Color: analysis.SeverityOf(risk).Color()},
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		// A fixed chart id keeps repeated renders byte-identical.
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  RiskChartTitle,
			Width:      o.Width,
			Height:     o.Height,
			ChartID:    "risk_chart",
			AssetsHost: o.AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: RiskChartTitle, Subtitle: o.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:         "value",
			Min:          0,
			Max:          riskAxisMax,
			SplitNumber:  riskAxisMax,
			Name:         RiskAxisLabel,
			NameLocation: "middle",
			NameGap:      25,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "category",
			Data: analysis.Subjects(),
		}),
	)
	bar.AddSeries("risk", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
	)

	return bar
}

// RiskChartHTML renders the interactive chart as a standalone HTML page.
func RiskChartHTML(risks analysis.RiskVector, o ChartOptions) (string, error) {
	var buf bytes.Buffer
	if err := RiskChart(risks, o).Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render risk chart: %w", err)
	}
	return buf.String(), nil
}
