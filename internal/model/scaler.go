package model

import "fmt"

// Scaler applies the per-feature standardization learned once at
// training time: (x - mean) / scale. Transform never refits; reusing
// the fit-time statistics is what keeps scores comparable over time.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Scaler) validate(numFeatures int) error {
	if len(s.Mean) != numFeatures || len(s.Scale) != numFeatures {
		return fmt.Errorf("%w: scaler has %d/%d stats, expected %d",
			ErrBadArtifact, len(s.Mean), len(s.Scale), numFeatures)
	}
	return nil
}

// Transform standardizes each row. Zero-variance features (scale 0)
// pass through centered only, matching the trainer's convention.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, len(s.Mean)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			d := s.Scale[j]
			if d == 0 {
				d = 1
			}
			scaled[j] = (v - s.Mean[j]) / d
		}
		out[i] = scaled
	}
	return out, nil
}
