package model

import (
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/records"
	"gonum.org/v1/gonum/floats"
)

// LinearOutput is one per-subject regression head.
type LinearOutput struct {
	Subject   string    `json:"subject,omitempty"`
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
}

type linearModel struct {
	id       string
	features []string
	outputs  []LinearOutput
}

func newLinear(a *Artifact) (*linearModel, error) {
	if len(a.Outputs) == 0 {
		return nil, fmt.Errorf("linear model has no outputs")
	}
	for i, out := range a.Outputs {
		if len(out.Weights) != len(a.Features) {
			return nil, fmt.Errorf("output %d has %d weights for %d features", i, len(out.Weights), len(a.Features))
		}
	}
	return &linearModel{id: a.ID(), features: a.Features, outputs: a.Outputs}, nil
}

// Predict scores every head and snaps the result onto the grade scale.
func (m *linearModel) Predict(row records.FeatureRow) (Prediction, error) {
	x, err := featureVector(m.features, row)
	if err != nil {
		return Prediction{}, err
	}

	grades := make([]*float64, len(m.outputs))
	for i, out := range m.outputs {
		y := out.Intercept + floats.Dot(out.Weights, x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		g := math.Min(math.Max(math.Round(y), analysis.MinGrade), analysis.MaxGrade)
		grades[i] = &g
	}

	return Prediction{Grades: grades, Model: m.id}, nil
}
