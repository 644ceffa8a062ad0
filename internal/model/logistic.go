package model

import (
	"fmt"
	"math"
)

// LogisticModel is a binary logistic regression classifier.
// The sigmoid of the decision function is the probability of the
// second class in ClassOrder, per the trainer's convention.
type LogisticModel struct {
	Coef       []float64 `json:"coef"`
	Intercept  float64   `json:"intercept"`
	ClassOrder []int     `json:"classes"`
}

func (m *LogisticModel) validate() error {
	if len(m.Coef) == 0 {
		return fmt.Errorf("%w: logistic model has no coefficients", ErrBadArtifact)
	}
	if len(m.ClassOrder) != 2 {
		return fmt.Errorf("%w: logistic model has %d classes, expected 2",
			ErrBadArtifact, len(m.ClassOrder))
	}
	return nil
}

// Classes returns the class order probabilities are reported in.
func (m *LogisticModel) Classes() []int { return m.ClassOrder }

// PredictProba computes class probabilities for each row.
func (m *LogisticModel) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		z := m.Intercept
		for j, v := range row {
			z += m.Coef[j] * v
		}
		p := sigmoid(z)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
