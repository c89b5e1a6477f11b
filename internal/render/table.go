package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
)

var gradesTableTmpl = template.Must(template.New("grades").Parse(
	`<table class="grades-table"><tr>{{range .Subjects}}<th>{{.}}</th>{{end}}</tr>` +
		`<tr>{{range .Grades}}<td>{{.}}</td>{{end}}</tr></table>`))

// GradesTable renders a header row of subjects over a row of grades.
func GradesTable(g analysis.GradeVector) (template.HTML, error) {
	var sb strings.Builder
	err := gradesTableTmpl.Execute(&sb, struct {
		Subjects []string
		Grades   []int
	}{analysis.Subjects(), g.Slice()})
	if err != nil {
		return "", fmt.Errorf("failed to render grades table: %w", err)
	}
	return template.HTML(sb.String()), nil
}

// FormatAverage renders the average with exactly two decimals.
func FormatAverage(avg float64) string {
	return fmt.Sprintf("%.2f", avg)
}
