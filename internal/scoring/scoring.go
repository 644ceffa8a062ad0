// Package scoring implements the churn risk scoring engine.
//
// Given the feature store and the loaded model bundle, it turns one
// customer or a whole portfolio into calibrated churn probabilities and
// discrete risk tiers. The tier thresholds are business constants, not
// learned from data.
package scoring

// Label is the discrete risk tier shown to the business.
type Label string

const (
	LabelHigh   Label = "HIGH RISK"
	LabelMedium Label = "MEDIUM RISK"
	LabelLow    Label = "LOW RISK"
)

// Tier thresholds. Each is the inclusive lower bound of its tier.
const (
	HighThreshold   = 0.70
	MediumThreshold = 0.40
)

// LabelFor maps a churn probability to its risk tier.
func LabelFor(p float64) Label {
	switch {
	case p >= HighThreshold:
		return LabelHigh
	case p >= MediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

// Tier returns the lowercase tier name used in metrics labels.
func (l Label) Tier() string {
	switch l {
	case LabelHigh:
		return "high"
	case LabelMedium:
		return "medium"
	default:
		return "low"
	}
}

// Result is one customer's risk assessment. The cleansed feature
// snapshot is echoed so the presentation layer can explain the score.
// Results are ephemeral; nothing here is persisted by the engine.
type Result struct {
	CustomerID  int64              `json:"customerId"`
	Probability float64            `json:"riskProbability"`
	Label       Label              `json:"riskLabel"`
	Features    map[string]float64 `json:"features"`
}
