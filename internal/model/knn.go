package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/ZanzyTHEbar/gradewatch/internal/analysis"
	"github.com/ZanzyTHEbar/gradewatch/internal/records"
	"gonum.org/v1/gonum/floats"
)

// TrainingSample is one labelled row of a k-NN artifact. A nil grade means the
// subject was not graded for that student.
type TrainingSample struct {
	Features []float64  `json:"features"`
	Grades   []*float64 `json:"grades"`
}

type knnModel struct {
	id       string
	k        int
	features []string
	samples  []TrainingSample
	outputs  int
}

func newKNN(a *Artifact) (*knnModel, error) {
	if a.K <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", a.K)
	}
	if len(a.Training) == 0 {
		return nil, fmt.Errorf("k-NN model has no training samples")
	}

	outputs := 0
	for i, s := range a.Training {
		if len(s.Features) != len(a.Features) {
			return nil, fmt.Errorf("training sample %d has %d features, want %d", i, len(s.Features), len(a.Features))
		}
		for j, g := range s.Grades {
			if g == nil {
				continue
			}
			if math.IsNaN(*g) || *g < analysis.MinGrade || *g > analysis.MaxGrade {
				return nil, fmt.Errorf("training sample %d grade %d is %v, want %d..%d", i, j, *g, analysis.MinGrade, analysis.MaxGrade)
			}
		}
		if len(s.Grades) > outputs {
			outputs = len(s.Grades)
		}
	}

	return &knnModel{
		id:       a.ID(),
		k:        a.K,
		features: a.Features,
		samples:  a.Training,
		outputs:  outputs,
	}, nil
}

type neighbour struct {
	dist  float64
	index int
}

// Predict averages each subject grade over the k nearest training samples.
func (m *knnModel) Predict(row records.FeatureRow) (Prediction, error) {
	x, err := featureVector(m.features, row)
	if err != nil {
		return Prediction{}, err
	}

	nearest := make([]neighbour, len(m.samples))
	for i, s := range m.samples {
		nearest[i] = neighbour{dist: floats.Distance(x, s.Features, 2), index: i}
	}
	sort.SliceStable(nearest, func(a, b int) bool {
		return nearest[a].dist < nearest[b].dist
	})

	k := min(m.k, len(nearest))
	grades := make([]*float64, m.outputs)
	for j := range grades {
		var sum float64
		var n int
		for _, nb := range nearest[:k] {
			sample := m.samples[nb.index]
			if j < len(sample.Grades) && sample.Grades[j] != nil {
				sum += *sample.Grades[j]
				n++
			}
		}
		if n > 0 {
			mean := sum / float64(n)
			grades[j] = &mean
		}
	}

	return Prediction{Grades: grades, Model: m.id}, nil
}
