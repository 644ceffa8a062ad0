package server

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crisintel/cris/internal/contract"
	"github.com/crisintel/cris/internal/featurestore"
	"github.com/crisintel/cris/internal/logging"
	"github.com/crisintel/cris/internal/model"
	"github.com/crisintel/cris/internal/pagination"
	"github.com/crisintel/cris/internal/scoring"
	"github.com/crisintel/cris/internal/traces"
	"github.com/crisintel/cris/internal/validation"
)

// -----------------------------------------------------------------------------
// Info & health
// -----------------------------------------------------------------------------

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "CRIS",
		"description": "Customer churn risk scoring service",
		"version":     "0.1.0",
	})
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) feedStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Customers
// -----------------------------------------------------------------------------

// listCustomersHandler handles GET /v1/customers. Supports cursor
// pagination via the cursor and limit query params; without them the
// full directory is returned.
func (s *Server) listCustomersHandler(c *gin.Context) {
	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not a valid pagination token",
		})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	customers, err := s.store.ListCustomers(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list customers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list customers",
		})
		return
	}

	page, next, more := pagination.ComputePage(customers, after, limit,
		func(c featurestore.Customer) int64 { return c.ID })

	body := gin.H{
		"customers": page,
		"count":     len(page),
	}
	if more {
		body["nextCursor"] = next
	}
	c.JSON(http.StatusOK, body)
}

// -----------------------------------------------------------------------------
// Scoring
// -----------------------------------------------------------------------------

// scoreCustomerHandler handles GET /v1/customers/:id/score
func (s *Server) scoreCustomerHandler(c *gin.Context) {
	id, _ := validation.ParseCustomerID(c.Param("id"))

	ctx, span := traces.StartSpan(c.Request.Context(), "score_customer", traces.CustomerID(id))
	defer span.End()

	res, err := s.engine.ScoreOne(ctx, id)
	if err != nil {
		s.writeScoringError(c, err)
		return
	}
	span.SetAttributes(traces.RiskTier(res.Label.Tier()))

	body := gin.H{
		"customerId":      res.CustomerID,
		"riskProbability": res.Probability,
		"riskLabel":       res.Label,
		"features":        res.Features,
	}

	// Portfolio averages give the score context: is this customer's
	// recency bad in absolute terms or just for this book of business?
	if avg, err := s.store.Averages(ctx); err == nil {
		body["portfolioAverages"] = avg
	}

	if res.Label == scoring.LabelHigh {
		s.realtimeHub.BroadcastHighRisk(map[string]interface{}{
			"customerId":      res.CustomerID,
			"riskProbability": res.Probability,
			"riskLabel":       string(res.Label),
		})
	}

	c.JSON(http.StatusOK, body)
}

// scoresHandler handles GET /v1/scores. Query params:
//
//	ids              comma-separated customer ids; omitted means everyone
//	min_probability  drop results below this
//	max_probability  drop results above this
//	limit            cap the result count after sorting
func (s *Server) scoresHandler(c *gin.Context) {
	ids, ok := validation.ParseIDList(c.Query("ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_ids",
			"message": "ids must be a comma-separated list of positive integers",
		})
		return
	}
	minP, okMin := validation.ParseProbability(c.Query("min_probability"), 0)
	maxP, okMax := validation.ParseProbability(c.Query("max_probability"), 1)
	if !okMin || !okMax {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_probability",
			"message": "probability filters must be numbers in [0, 1]",
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "score_batch", traces.BatchSize(len(ids)))
	defer span.End()

	results, err := s.engine.ScoreMany(ctx, ids)
	if err != nil {
		s.writeScoringError(c, err)
		return
	}

	filtered := make([]*scoring.Result, 0, len(results))
	for _, r := range results {
		if r.Probability < minP || r.Probability > maxP {
			continue
		}
		filtered = append(filtered, r)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	s.broadcastScan(results)

	c.JSON(http.StatusOK, gin.H{
		"scores": filtered,
		"count":  len(filtered),
		"scored": len(results),
	})
}

// exportScoresHandler handles GET /v1/scores/export, streaming the full
// portfolio as CSV for spreadsheet-driven retention teams.
func (s *Server) exportScoresHandler(c *gin.Context) {
	ids, ok := validation.ParseIDList(c.Query("ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_ids",
			"message": "ids must be a comma-separated list of positive integers",
		})
		return
	}

	results, err := s.engine.ScoreMany(c.Request.Context(), ids)
	if err != nil {
		s.writeScoringError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="churn_scores.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	header := append([]string{"customer_id", "risk_probability", "risk_label"}, contract.Columns()...)
	_ = w.Write(header)

	row := make([]string, len(header))
	for _, r := range results {
		row[0] = strconv.FormatInt(r.CustomerID, 10)
		row[1] = strconv.FormatFloat(r.Probability, 'f', 6, 64)
		row[2] = string(r.Label)
		for i, col := range contract.Columns() {
			row[3+i] = strconv.FormatFloat(r.Features[col], 'f', -1, 64)
		}
		_ = w.Write(row)
	}
	w.Flush()
}

// portfolioSummaryHandler handles GET /v1/portfolio/summary
func (s *Server) portfolioSummaryHandler(c *gin.Context) {
	ctx, span := traces.StartSpan(c.Request.Context(), "portfolio_summary")
	defer span.End()

	results, err := s.engine.ScoreMany(ctx, nil)
	if err != nil {
		s.writeScoringError(c, err)
		return
	}

	tiers := map[string]int{"high": 0, "medium": 0, "low": 0}
	var sum float64
	for _, r := range results {
		tiers[r.Label.Tier()]++
		sum += r.Probability
	}
	mean := 0.0
	if len(results) > 0 {
		mean = sum / float64(len(results))
	}

	body := gin.H{
		"customers":       len(results),
		"tiers":           tiers,
		"meanProbability": mean,
	}
	if avg, err := s.store.Averages(ctx); err == nil {
		body["portfolioAverages"] = avg
	}
	if bundle, err := s.loader.Bundle(); err == nil {
		body["model"] = bundle.Meta.ModelName
	}

	s.broadcastScan(results)

	c.JSON(http.StatusOK, body)
}

// broadcastScan pushes scan results to feed subscribers.
func (s *Server) broadcastScan(results []*scoring.Result) {
	high := 0
	for _, r := range results {
		if r.Label != scoring.LabelHigh {
			// Results are sorted riskiest first.
			break
		}
		high++
		s.realtimeHub.BroadcastHighRisk(map[string]interface{}{
			"customerId":      r.CustomerID,
			"riskProbability": r.Probability,
			"riskLabel":       string(r.Label),
		})
	}
	s.realtimeHub.BroadcastScanCompleted(map[string]interface{}{
		"customers": len(results),
		"highRisk":  high,
	})
}

// -----------------------------------------------------------------------------
// Model
// -----------------------------------------------------------------------------

func (s *Server) modelInfoHandler(c *gin.Context) {
	bundle, err := s.loader.Bundle()
	if err != nil {
		s.writeScoringError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"modelName":    bundle.Meta.ModelName,
		"prAuc":        bundle.Meta.PRAUC,
		"rocAuc":       bundle.Meta.ROCAUC,
		"f1":           bundle.Meta.F1,
		"features":     bundle.Meta.Features,
		"needsScaling": bundle.Meta.NeedsScaling,
		"thresholds": gin.H{
			"high":   scoring.HighThreshold,
			"medium": scoring.MediumThreshold,
		},
	})
}

func (s *Server) reloadModelHandler(c *gin.Context) {
	bundle, err := s.loader.Reload()
	if err != nil {
		logging.L(c.Request.Context()).Error("model reload failed", "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "reload_failed",
			"message": err.Error(),
		})
		return
	}

	s.realtimeHub.BroadcastModelReloaded(map[string]interface{}{
		"modelName": bundle.Meta.ModelName,
		"prAuc":     bundle.Meta.PRAUC,
	})

	c.JSON(http.StatusOK, gin.H{
		"status":    "reloaded",
		"modelName": bundle.Meta.ModelName,
	})
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// writeScoringError maps engine errors to HTTP responses. A missing
// customer is the caller's problem; a missing or inconsistent model is
// an operational fault and surfaces as 503.
func (s *Server) writeScoringError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, featurestore.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "customer_not_found",
			"message": "No feature row exists for this customer",
		})
	case errors.Is(err, model.ErrModelNotFound),
		errors.Is(err, model.ErrUnknownAlgorithm),
		errors.Is(err, model.ErrBadArtifact),
		errors.Is(err, contract.ErrSchemaMismatch):
		logging.L(c.Request.Context()).Error("model unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "model_unavailable",
			"message": "The scoring model is not available",
		})
	default:
		logging.L(c.Request.Context()).Error("scoring failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to score",
		})
	}
}
