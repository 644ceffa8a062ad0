package model

import "fmt"

// ForestModel is a random-forest classifier: each tree's leaf holds
// class counts, and the forest prediction is the mean of the per-tree
// normalized class distributions.
type ForestModel struct {
	Trees       []decisionTree `json:"trees"`
	ClassOrder  []int          `json:"classes"`
	NumFeatures int            `json:"n_features"`
}

func (m *ForestModel) validate() error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrBadArtifact)
	}
	if len(m.ClassOrder) < 2 {
		return fmt.Errorf("%w: forest has %d classes", ErrBadArtifact, len(m.ClassOrder))
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
		for n, v := range t.Value {
			if len(v) != len(m.ClassOrder) {
				return fmt.Errorf("%w: tree %d node %d has %d class values, expected %d",
					ErrBadArtifact, i, n, len(v), len(m.ClassOrder))
			}
		}
	}
	return nil
}

// Classes returns the class order probabilities are reported in.
func (m *ForestModel) Classes() []int { return m.ClassOrder }

// PredictProba averages normalized leaf class counts across all trees.
func (m *ForestModel) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, m.NumFeatures); err != nil {
		return nil, err
	}
	nClasses := len(m.ClassOrder)
	out := make([][]float64, len(X))
	for i, row := range X {
		probs := make([]float64, nClasses)
		for t := range m.Trees {
			tree := &m.Trees[t]
			counts := tree.Value[tree.leaf(row)]
			total := 0.0
			for _, c := range counts {
				total += c
			}
			if total <= 0 {
				continue
			}
			for k, c := range counts {
				probs[k] += c / total
			}
		}
		for k := range probs {
			probs[k] /= float64(len(m.Trees))
		}
		out[i] = probs
	}
	return out, nil
}
