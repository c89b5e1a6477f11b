package analysis

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// NoWeakSubjectsMessage is returned by Recommend when nothing is graded 2 or 3.
const NoWeakSubjectsMessage = "No subjects below satisfactory (grades 2 or 3)."

// Normalize turns raw model output into a GradeVector. Missing or non-finite
// entries become DefaultGrade, short output is padded with DefaultGrade and
// anything past SubjectCount is dropped. Values are rounded to the nearest
// integer and clamped to [MinGrade, MaxGrade].
func Normalize(raw []*float64) GradeVector {
	var g GradeVector
	for i := range g {
		g[i] = DefaultGrade
		if i >= len(raw) || raw[i] == nil {
			continue
		}
		v := *raw[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		g[i] = int(math.Round(math.Max(MinGrade, math.Min(MaxGrade, v))))
	}
	return g
}

// NormalizeValues adapts a bare array of predictions to Normalize.
func NormalizeValues(values []float64) GradeVector {
	raw := make([]*float64, len(values))
	for i := range values {
		raw[i] = &values[i]
	}
	return Normalize(raw)
}

// Classify maps every grade to a risk level: 5 -> 1, 4 -> 2, 3 -> 3, 2 -> 4.
func Classify(g GradeVector) RiskVector {
	var r RiskVector
	for i, grade := range g {
		r[i] = MaxGrade - grade + 1
	}
	return r
}

// SeverityOf buckets a single risk level.
func SeverityOf(risk int) Severity {
	switch {
	case risk >= 4:
		return SeverityHigh
	case risk >= 3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Severities buckets every entry of the vector.
func (r RiskVector) Severities() [SubjectCount]Severity {
	var out [SubjectCount]Severity
	for i, risk := range r {
		out[i] = SeverityOf(risk)
	}
	return out
}

// WeakSubjects lists, in subject order, the subjects graded 2 or 3.
func WeakSubjects(g GradeVector) []string {
	var weak []string
	for i, grade := range g {
		if grade == 2 || grade == 3 {
			weak = append(weak, subjects[i])
		}
	}
	return weak
}

// Recommend produces the recommendation sentence for a grade vector.
func Recommend(g GradeVector) string {
	weak := WeakSubjects(g)
	switch len(weak) {
	case 0:
		return NoWeakSubjectsMessage
	case 1:
		return fmt.Sprintf("Improve your knowledge in the following subject: %s", weak[0])
	default:
		return fmt.Sprintf("Improve your knowledge in the following subjects: %s", strings.Join(weak, ", "))
	}
}

// Average is the arithmetic mean of the grades rounded to two decimals.
func Average(g GradeVector) float64 {
	values := make([]float64, SubjectCount)
	for i, grade := range g {
		values[i] = float64(grade)
	}
	mean := floats.Sum(values) / SubjectCount
	return math.Round(mean*100) / 100
}

// Breakdown zips subjects, grades, risks and severities into per-subject lines.
func Breakdown(g GradeVector) []SubjectResult {
	risks := Classify(g)
	out := make([]SubjectResult, SubjectCount)
	for i := range out {
		out[i] = SubjectResult{
			Subject:  subjects[i],
			Grade:    g[i],
			Risk:     risks[i],
			Severity: SeverityOf(risks[i]),
		}
	}
	return out
}
