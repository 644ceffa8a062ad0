package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/crisintel/cris/internal/contract"
	"github.com/crisintel/cris/internal/metrics"
)

// Loader owns the process-wide model handle. The bundle is loaded
// lazily on first use, shared read-only afterwards, and replaced only
// through Reload. Concurrent callers during the load window block on
// the same in-flight load instead of racing to populate the cache.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	bundle *Bundle
}

// NewLoader creates a loader for artifacts under dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Bundle returns the cached bundle, loading it on first call.
func (l *Loader) Bundle() (*Bundle, error) {
	l.mu.RLock()
	b := l.bundle
	l.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bundle != nil {
		return l.bundle, nil
	}
	b, err := l.load()
	if err != nil {
		return nil, err
	}
	l.bundle = b
	metrics.ModelLoaded.Set(1)
	return b, nil
}

// Reload re-reads the artifacts and atomically swaps the cached bundle.
// In-flight scoring calls keep the bundle they already hold.
func (l *Loader) Reload() (*Bundle, error) {
	b, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.bundle = b
	l.mu.Unlock()
	metrics.ModelLoaded.Set(1)
	metrics.ModelReloadsTotal.Inc()
	l.logger.Info("model reloaded",
		"algorithm", b.Meta.ModelName,
		"pr_auc", b.Meta.PRAUC,
		"needs_scaling", b.Meta.NeedsScaling,
	)
	return b, nil
}

// Loaded reports whether a bundle is currently cached.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bundle != nil
}

func (l *Loader) load() (*Bundle, error) {
	meta, err := l.readMetadata()
	if err != nil {
		return nil, err
	}

	// Schema drift between trainer and contract invalidates the
	// artifacts. Caught here, at load time, never at predict time.
	if err := contract.Validate(meta.Features); err != nil {
		return nil, err
	}

	clf, err := l.readClassifier()
	if err != nil {
		return nil, err
	}

	scaler, err := l.readScaler()
	if err != nil {
		return nil, err
	}
	if meta.NeedsScaling && scaler == nil {
		return nil, fmt.Errorf("%w: metadata requires scaling but %s is missing",
			ErrModelNotFound, ScalerFile)
	}

	l.logger.Info("model artifacts loaded",
		"dir", l.dir,
		"algorithm", meta.ModelName,
		"features", len(meta.Features),
		"needs_scaling", meta.NeedsScaling,
	)

	return &Bundle{Classifier: clf, Scaler: scaler, Meta: meta}, nil
}

func (l *Loader) readMetadata() (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(l.dir, MetadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, fmt.Errorf("%w: %s missing in %s", ErrModelNotFound, MetadataFile, l.dir)
		}
		return meta, fmt.Errorf("read %s: %w", MetadataFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: parse %s: %v", ErrBadArtifact, MetadataFile, err)
	}
	return meta, nil
}

func (l *Loader) readClassifier() (Classifier, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, ModelFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing in %s", ErrModelNotFound, ModelFile, l.dir)
		}
		return nil, fmt.Errorf("read %s: %w", ModelFile, err)
	}

	var envelope struct {
		Algorithm string          `json:"algorithm"`
		Params    json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrBadArtifact, ModelFile, err)
	}

	switch envelope.Algorithm {
	case AlgoLogistic:
		var m LogisticModel
		if err := json.Unmarshal(envelope.Params, &m); err != nil {
			return nil, fmt.Errorf("%w: parse logistic params: %v", ErrBadArtifact, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		if len(m.Coef) != contract.NumFeatures() {
			return nil, fmt.Errorf("%w: logistic model has %d coefficients, contract has %d features",
				contract.ErrSchemaMismatch, len(m.Coef), contract.NumFeatures())
		}
		return &m, nil

	case AlgoRandomForest:
		var m ForestModel
		if err := json.Unmarshal(envelope.Params, &m); err != nil {
			return nil, fmt.Errorf("%w: parse forest params: %v", ErrBadArtifact, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		if m.NumFeatures != contract.NumFeatures() {
			return nil, fmt.Errorf("%w: forest expects %d features, contract has %d",
				contract.ErrSchemaMismatch, m.NumFeatures, contract.NumFeatures())
		}
		return &m, nil

	case AlgoGradientBoosting:
		var m GradientBoostedModel
		if err := json.Unmarshal(envelope.Params, &m); err != nil {
			return nil, fmt.Errorf("%w: parse boosted params: %v", ErrBadArtifact, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		if m.NumFeatures != contract.NumFeatures() {
			return nil, fmt.Errorf("%w: boosted model expects %d features, contract has %d",
				contract.ErrSchemaMismatch, m.NumFeatures, contract.NumFeatures())
		}
		return &m, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, envelope.Algorithm)
	}
}

func (l *Loader) readScaler() (*Scaler, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, ScalerFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // scaler is optional
		}
		return nil, fmt.Errorf("read %s: %w", ScalerFile, err)
	}
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrBadArtifact, ScalerFile, err)
	}
	if err := s.validate(contract.NumFeatures()); err != nil {
		return nil, err
	}
	return &s, nil
}
