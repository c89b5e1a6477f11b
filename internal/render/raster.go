package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/color"
	"strconv"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ClassBucket is one bar of the staff grade-distribution chart.
type ClassBucket struct {
	Label string
	Count int
	Color string
}

// ClassDistribution is the grade spread of a class.
type ClassDistribution []ClassBucket

// PlaceholderClassDistribution is shown on the staff view until class data is wired in.
var PlaceholderClassDistribution = ClassDistribution{
	{Label: "Excellent", Count: 8, Color: "#4caf50"},
	{Label: "Good", Count: 9, Color: "#2196f3"},
	{Label: "Satisfactory", Count: 10, Color: "#ffc107"},
	{Label: "Unsatisfactory", Count: 5, Color: "#f44336"},
}

// hexColor parses "#rrggbb".
func hexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{A: 0xff}
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func integerTicks(max int) plot.ConstantTicks {
	ticks := make([]plot.Tick, 0, max+1)
	for i := 0; i <= max; i++ {
		ticks = append(ticks, plot.Tick{Value: float64(i), Label: strconv.Itoa(i)})
	}
	return ticks
}

// RiskChartPNG draws the risk chart as a PNG image.
func RiskChartPNG(risks analysis.RiskVector) ([]byte, error) {
	p := plot.New()
	p.Title.Text = RiskChartTitle
	p.X.Label.Text = RiskAxisLabel
	p.X.Min = 0
	p.X.Max = riskAxisMax
	p.X.Tick.Marker = integerTicks(riskAxisMax)
	p.Add(plotter.NewGrid())

	labels := plotter.XYLabels{
		XYs:    make(plotter.XYs, analysis.SubjectCount),
		Labels: make([]string, analysis.SubjectCount),
	}
	for i, risk := range risks {
		bar, err := plotter.NewBarChart(plotter.Values{float64(risk)}, vg.Points(18))
		if err != nil {
			return nil, fmt.Errorf("failed to build bar %d: %w", i, err)
		}
		bar.Horizontal = true
		bar.XMin = float64(i)
		bar.Color = hexColor(analysis.SeverityOf(risk).Color())
		bar.LineStyle.Width = 0
		p.Add(bar)

		labels.XYs[i] = plotter.XY{X: float64(risk) + 0.08, Y: float64(i)}
		labels.Labels[i] = strconv.Itoa(risk)
	}

	l, err := plotter.NewLabels(labels)
	if err != nil {
		return nil, fmt.Errorf("failed to build labels: %w", err)
	}
	p.Add(l)
	p.NominalY(analysis.Subjects()...)

	return encodePNG(p, 9*vg.Inch, 5*vg.Inch)
}

// ClassChartPNG draws a vertical bar per distribution bucket.
func ClassChartPNG(dist ClassDistribution) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Class grade distribution"
	p.Y.Label.Text = "Students"
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	names := make([]string, len(dist))
	for i, b := range dist {
		bar, err := plotter.NewBarChart(plotter.Values{float64(b.Count)}, vg.Points(40))
		if err != nil {
			return nil, fmt.Errorf("failed to build bar %s: %w", b.Label, err)
		}
		bar.XMin = float64(i)
		bar.Color = hexColor(b.Color)
		bar.LineStyle.Width = 0
		p.Add(bar)
		names[i] = b.Label
	}
	p.NominalX(names...)

	return encodePNG(p, 6*vg.Inch, 4*vg.Inch)
}

// ClassChartDataURI embeds the class chart PNG in a data URI for an <img> tag.
func ClassChartDataURI(dist ClassDistribution) (string, error) {
	png, err := ClassChartPNG(dist)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func encodePNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
