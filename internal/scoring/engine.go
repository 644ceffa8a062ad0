package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crisintel/cris/internal/contract"
	"github.com/crisintel/cris/internal/featurestore"
	"github.com/crisintel/cris/internal/metrics"
	"github.com/crisintel/cris/internal/model"
)

// DefaultConcurrency bounds the batch worker pool when not configured.
const DefaultConcurrency = 8

// BundleProvider hands out the current model bundle. *model.Loader
// satisfies it; tests swap in a stub.
type BundleProvider interface {
	Bundle() (*model.Bundle, error)
}

// Engine scores customers against the currently loaded model. It is
// stateless between calls: every score is recomputed from the feature
// store, never cached.
type Engine struct {
	store       featurestore.Store
	models      BundleProvider
	logger      *slog.Logger
	concurrency int
}

// NewEngine wires the scoring engine to its feature store and model
// source.
func NewEngine(store featurestore.Store, models BundleProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		models:      models,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
}

// WithConcurrency sets the batch worker pool size.
func (e *Engine) WithConcurrency(n int) *Engine {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// ScoreOne scores a single customer. A customer without a feature row
// yields featurestore.ErrCustomerNotFound, never a zero-probability
// score.
func (e *Engine) ScoreOne(ctx context.Context, customerID int64) (*Result, error) {
	start := time.Now()

	bundle, err := e.models.Bundle()
	if err != nil {
		return nil, err
	}
	posIdx, err := bundle.PositiveIndex()
	if err != nil {
		return nil, err
	}

	row, err := e.store.GetFeatures(ctx, customerID)
	if err != nil {
		return nil, err
	}

	res, err := e.scoreRow(bundle, posIdx, row)
	if err != nil {
		return nil, err
	}

	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	metrics.ScoringsTotal.WithLabelValues(res.Label.Tier()).Inc()
	return res, nil
}

// ScoreMany scores a batch of customers in one pass: one feature store
// query, one bundle for the whole run. A nil id slice means the entire
// portfolio. Requested ids without a feature row are skipped, not
// failed. Results come back sorted by probability descending, riskiest
// first, with customer id breaking ties.
func (e *Engine) ScoreMany(ctx context.Context, ids []int64) ([]*Result, error) {
	start := time.Now()

	bundle, err := e.models.Bundle()
	if err != nil {
		return nil, err
	}
	posIdx, err := bundle.PositiveIndex()
	if err != nil {
		return nil, err
	}

	rows, err := e.store.ListFeatures(ctx, ids)
	if err != nil {
		return nil, err
	}
	if ids != nil && len(rows) < len(ids) {
		skipped := len(ids) - len(rows)
		metrics.SkippedCustomersTotal.Add(float64(skipped))
		e.logger.Warn("skipping customers without feature rows",
			"requested", len(ids), "found", len(rows))
	}

	results := make([]*Result, len(rows))
	errs := make([]error, len(rows))

	workers := e.concurrency
	if workers > len(rows) {
		workers = len(rows)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = e.scoreRow(bundle, posIdx, &rows[i])
			}
		}()
	}
	for i := range rows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make([]*Result, 0, len(rows))
	for i, res := range results {
		if errs[i] != nil {
			// A row that fails cleansing or prediction here is a
			// schema-level fault, not a per-customer condition.
			return nil, fmt.Errorf("score customer %d: %w", rows[i].CustomerID, errs[i])
		}
		out = append(out, res)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].CustomerID < out[j].CustomerID
	})

	for _, res := range out {
		metrics.ScoringsTotal.WithLabelValues(res.Label.Tier()).Inc()
	}
	metrics.PortfolioScansTotal.Inc()
	metrics.PortfolioScanDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("portfolio scored",
		"customers", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// scoreRow cleanses one feature row, applies the fit-time scaler when
// the model requires it, and reads off the positive-class probability.
func (e *Engine) scoreRow(bundle *model.Bundle, posIdx int, row *featurestore.FeatureRow) (*Result, error) {
	vec, err := contract.Vector(row.Raw)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]float64, len(vec))
	for i, col := range contract.Columns() {
		snapshot[col] = vec[i]
	}

	X, err := bundle.Prepare([][]float64{vec})
	if err != nil {
		return nil, err
	}
	probs, err := bundle.Classifier.PredictProba(X)
	if err != nil {
		return nil, err
	}
	if len(probs) != 1 || posIdx >= len(probs[0]) {
		return nil, fmt.Errorf("%w: prediction shape %dx%d",
			model.ErrBadArtifact, len(probs), posIdx)
	}

	p := probs[0][posIdx]
	return &Result{
		CustomerID:  row.CustomerID,
		Probability: p,
		Label:       LabelFor(p),
		Features:    snapshot,
	}, nil
}
