package model

import "fmt"

// GradientBoostedModel is a binary gradient-boosted tree classifier.
// Each tree's leaf holds a regression contribution to the log-odds of
// the positive class; the final probability is the sigmoid of the base
// score plus the learning-rate-weighted sum over all trees.
type GradientBoostedModel struct {
	Trees        []decisionTree `json:"trees"`
	LearningRate float64        `json:"learning_rate"`
	BaseScore    float64        `json:"base_score"`
	ClassOrder   []int          `json:"classes"`
	NumFeatures  int            `json:"n_features"`
}

func (m *GradientBoostedModel) validate() error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: boosted model has no trees", ErrBadArtifact)
	}
	if len(m.ClassOrder) != 2 {
		return fmt.Errorf("%w: boosted model has %d classes, expected 2",
			ErrBadArtifact, len(m.ClassOrder))
	}
	if m.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive", ErrBadArtifact)
	}
	for i := range m.Trees {
		t := &m.Trees[i]
		if err := t.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		if t.maxFeature() >= m.NumFeatures {
			return fmt.Errorf("%w: tree %d references feature %d, model has %d",
				ErrBadArtifact, i, t.maxFeature(), m.NumFeatures)
		}
	}
	return nil
}

// Classes returns the class order probabilities are reported in.
func (m *GradientBoostedModel) Classes() []int { return m.ClassOrder }

// PredictProba computes class probabilities for each row.
func (m *GradientBoostedModel) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, m.NumFeatures); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		raw := m.BaseScore
		for t := range m.Trees {
			tree := &m.Trees[t]
			raw += m.LearningRate * tree.Value[tree.leaf(row)][0]
		}
		p := sigmoid(raw)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}
