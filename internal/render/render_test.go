package render

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleRisks = analysis.Classify(analysis.GradeVector{5, 4, 3, 2, 5, 4, 3, 5, 4})

func TestRiskChartHTML(t *testing.T) {
	html, err := RiskChartHTML(sampleRisks, ChartOptions{AssetsHost: "/assets/"})
	require.NoError(t, err)

	assert.Contains(t, html, RiskChartTitle)
	assert.Contains(t, html, RiskAxisLabel)
	assert.Contains(t, html, "/assets/echarts.min.js")
	for _, c := range []string{"#ff5252", "#ffb74d", "#66bb6a"} {
		assert.Contains(t, html, c)
	}
	for _, s := range analysis.Subjects() {
		assert.Contains(t, html, s)
	}
}

func TestRiskChartHTMLIsDeterministic(t *testing.T) {
	first, err := RiskChartHTML(sampleRisks, ChartOptions{})
	require.NoError(t, err)
	second, err := RiskChartHTML(sampleRisks, ChartOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRiskChartBarColours(t *testing.T) {
	bar := RiskChart(sampleRisks, ChartOptions{})
	require.Len(t, bar.MultiSeries, 1)

	data, ok := bar.MultiSeries[0].Data.([]opts.BarData)
	require.True(t, ok)
	require.Len(t, data, analysis.SubjectCount)

	expected := []string{"#66bb6a", "#66bb6a", "#ffb74d", "#ff5252", "#66bb6a", "#66bb6a", "#ffb74d", "#66bb6a", "#66bb6a"}
	for i, d := range data {
		assert.Equal(t, sampleRisks[i], d.Value)
		assert.Equal(t, expected[i], d.ItemStyle.Color, "bar %d", i)
	}
}

func TestRiskChartPNG(t *testing.T) {
	data, err := RiskChartPNG(sampleRisks)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestClassChartDataURI(t *testing.T) {
	uri, err := ClassChartDataURI(PlaceholderClassDistribution)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestPlaceholderClassDistribution(t *testing.T) {
	counts := make([]int, 0, len(PlaceholderClassDistribution))
	for _, b := range PlaceholderClassDistribution {
		counts = append(counts, b.Count)
	}
	assert.Equal(t, []int{8, 9, 10, 5}, counts)
}

func TestGradesTable(t *testing.T) {
	html, err := GradesTable(analysis.GradeVector{2, 3, 4, 5, 2, 3, 4, 5, 3})
	require.NoError(t, err)

	s := string(html)
	assert.Equal(t, analysis.SubjectCount, strings.Count(s, "<th>"))
	assert.Equal(t, analysis.SubjectCount, strings.Count(s, "<td>"))
	assert.Contains(t, s, "<td>2</td><td>3</td><td>4</td><td>5</td>")

	// header order follows the subject list
	last := -1
	for _, subject := range analysis.Subjects() {
		idx := strings.Index(s, "<th>"+subject+"</th>")
		require.GreaterOrEqual(t, idx, 0, subject)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestFormatAverage(t *testing.T) {
	assert.Equal(t, "3.44", FormatAverage(3.44))
	assert.Equal(t, "3.00", FormatAverage(3))
	assert.Equal(t, "3.89", FormatAverage(analysis.Average(analysis.GradeVector{5, 4, 3, 2, 5, 4, 3, 5, 4})))
}

func TestHexColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xff, G: 0x52, B: 0x52, A: 0xff}, hexColor("#ff5252"))
	assert.Equal(t, color.RGBA{A: 0xff}, hexColor("bogus"))
	assert.Equal(t, color.RGBA{A: 0xff}, hexColor(""))
}
