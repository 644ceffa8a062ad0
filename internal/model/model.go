// Package model loads and serves the trained churn classifier artifacts.
//
// The external trainer writes three files into the models directory:
// model.json (required), scaler.json (optional) and metadata.json.
// This package turns them into an immutable Bundle that the scoring
// engine shares read-only across all requests. The trainer always
// writes a scaler file even for models trained on raw features, so
// whether to scale is decided by the metadata flag alone, never by
// the file's presence on disk.
package model

import (
	"errors"
	"fmt"
)

// Artifact file names, relative to the models directory.
const (
	ModelFile    = "model.json"
	ScalerFile   = "scaler.json"
	MetadataFile = "metadata.json"
)

// Algorithm keys recorded in model.json by the trainer.
const (
	AlgoLogistic         = "logistic_regression"
	AlgoRandomForest     = "random_forest"
	AlgoGradientBoosting = "gradient_boosting"
)

var (
	// ErrModelNotFound means the classifier artifact is absent or
	// unreadable. Fatal at startup, not per-request.
	ErrModelNotFound = errors.New("model artifact not found")

	// ErrUnknownAlgorithm means model.json names an algorithm this
	// binary has no implementation for.
	ErrUnknownAlgorithm = errors.New("unknown model algorithm")

	// ErrBadArtifact means an artifact parsed but its contents are
	// internally inconsistent (wrong dimensions, empty ensemble).
	ErrBadArtifact = errors.New("malformed model artifact")
)

// Classifier is the probability-prediction capability every model
// variant implements. PredictProba returns, for each input row, a
// probability distribution over the classes reported by Classes, in
// that order.
type Classifier interface {
	PredictProba(X [][]float64) ([][]float64, error)
	Classes() []int
}

// Metadata describes the trained model. Field names follow what the
// trainer writes into metadata.json.
type Metadata struct {
	ModelName    string   `json:"model_name"`
	PRAUC        float64  `json:"pr_auc"`
	ROCAUC       float64  `json:"roc_auc"`
	F1           float64  `json:"f1"`
	Features     []string `json:"features"`
	NeedsScaling bool     `json:"needs_scaling"`
}

// Bundle is the immutable {classifier, scaler, metadata} triple.
// Safe for concurrent use once constructed; nothing mutates it.
type Bundle struct {
	Classifier Classifier
	Scaler     *Scaler // may be nil
	Meta       Metadata
}

// PositiveIndex returns the column in PredictProba output that carries
// the "will churn" class (label 1). The class order is the model's to
// declare; we never assume the positive class sits at position 1.
func (b *Bundle) PositiveIndex() (int, error) {
	for i, c := range b.Classifier.Classes() {
		if c == 1 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no positive class in class order %v",
		ErrBadArtifact, b.Classifier.Classes())
}

// Prepare cleanses nothing (that is the contract package's job) but
// applies the fit-time scaler when, and only when, metadata says the
// model was trained on scaled features. The scaler is never refit.
func (b *Bundle) Prepare(X [][]float64) ([][]float64, error) {
	if !b.Meta.NeedsScaling || b.Scaler == nil {
		return X, nil
	}
	return b.Scaler.Transform(X)
}

func checkWidth(X [][]float64, want int) error {
	for i, row := range X {
		if len(row) != want {
			return fmt.Errorf("%w: row %d has %d features, model expects %d",
				ErrBadArtifact, i, len(row), want)
		}
	}
	return nil
}
