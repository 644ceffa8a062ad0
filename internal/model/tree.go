package model

import "fmt"

// decisionTree is a serialized CART tree in flat-array form, the layout
// the trainer exports: node i tests x[Feature[i]] <= Threshold[i] and
// descends Left[i] or Right[i]; Feature[i] < 0 marks a leaf. Value
// carries per-node payload: class counts for forests, a single
// regression output for boosted trees.
type decisionTree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

func (t *decisionTree) validate() error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("%w: empty tree", ErrBadArtifact)
	}
	if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return fmt.Errorf("%w: tree arrays have inconsistent lengths", ErrBadArtifact)
	}
	return nil
}

// leaf walks the tree for one sample and returns the leaf node index.
func (t *decisionTree) leaf(x []float64) int {
	node := 0
	// Bounded by node count; a malformed cycle can't loop forever.
	for range t.Feature {
		f := t.Feature[node]
		if f < 0 {
			return node
		}
		if x[f] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
		if node < 0 || node >= len(t.Feature) {
			return 0
		}
	}
	return node
}

// maxFeature returns the highest feature index referenced by the tree,
// used to sanity-check against the contract width at load time.
func (t *decisionTree) maxFeature() int {
	max := -1
	for _, f := range t.Feature {
		if f > max {
			max = f
		}
	}
	return max
}
