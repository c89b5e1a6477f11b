// Package model loads the pre-trained grade predictor and applies it to dataset rows.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ZanzyTHEbar/gradewatch/internal/records"
)

// Artifact kinds.
const (
	KindLinear = "linear"
	KindKNN    = "knn"
)

// ErrMissingFeature is returned when a row lacks a feature the model was trained on.
var ErrMissingFeature = errors.New("missing feature")

// Prediction is the raw model output for one row. Grades may be shorter or longer
// than the subject list and may contain nil entries; callers normalize it.
type Prediction struct {
	Grades []*float64 `json:"grades"`
	Model  string     `json:"model"`
}

// Predictor is an opaque trained model.
type Predictor interface {
	Predict(row records.FeatureRow) (Prediction, error)
}

// Func adapts a plain function to Predictor.
type Func func(row records.FeatureRow) (Prediction, error)

// Predict calls f.
func (f Func) Predict(row records.FeatureRow) (Prediction, error) {
	return f(row)
}

// Artifact is the serialized form of a trained model.
type Artifact struct {
	Name     string           `json:"name"`
	Version  string           `json:"version"`
	Kind     string           `json:"kind"`
	Features []string         `json:"features"`
	Outputs  []LinearOutput   `json:"outputs,omitempty"`
	K        int              `json:"k,omitempty"`
	Training []TrainingSample `json:"training,omitempty"`
}

// ID is the name/version pair reported with every prediction.
func (a *Artifact) ID() string {
	if a.Version == "" {
		return a.Name
	}
	return a.Name + "@" + a.Version
}

// LoadArtifact reads and validates a model artifact. It is called once at startup.
func LoadArtifact(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}

	predictor, err := FromArtifact(&artifact)
	if err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}

	slog.Info("Model loaded",
		"path", path,
		"model", artifact.ID(),
		"kind", artifact.Kind,
		"features", len(artifact.Features))

	return predictor, nil
}

// FromArtifact builds the predictor described by a decoded artifact.
func FromArtifact(a *Artifact) (Predictor, error) {
	if len(a.Features) == 0 {
		return nil, errors.New("artifact lists no features")
	}

	switch a.Kind {
	case KindLinear:
		return newLinear(a)
	case KindKNN:
		return newKNN(a)
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
}

// featureVector extracts the model's features from a row in artifact order.
func featureVector(features []string, row records.FeatureRow) ([]float64, error) {
	x := make([]float64, len(features))
	for i, name := range features {
		v, ok := row.Value(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		x[i] = v
	}
	return x, nil
}
