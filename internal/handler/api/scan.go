package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	"MarketScan/internal/usecase"
	xhttp "MarketScan/pkg/http"
	xlogger "MarketScan/pkg/logger"
	"MarketScan/pkg/util"

	"github.com/labstack/echo/v4"
)

// ScanHandler exposes the ranked signals and pipeline controls over HTTP.
type ScanHandler struct {
	logger   *xlogger.Logger
	pipeline *usecase.ScanPipeline
	runner   *usecase.SignalRunner
	universe domrepo.UniverseStore

	scanning atomic.Bool
}

func NewScanHandler(logger *xlogger.Logger, pipeline *usecase.ScanPipeline, runner *usecase.SignalRunner, universe domrepo.UniverseStore) *ScanHandler {
	return &ScanHandler{logger: logger, pipeline: pipeline, runner: runner, universe: universe}
}

func (h *ScanHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/signals/top", h.TopSignals)
	g.GET("/ingest/report", h.IngestReport)
	g.POST("/scan", h.Scan)
}

func (h *ScanHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Signals returns the ranked vectors for a run date. Without run_date it
// serves the latest finished run; with one it recomputes from the canonical
// table (memoized per date and threshold).
func (h *ScanHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.RunDate == "" {
		run := h.pipeline.LastRun()
		if run == nil {
			return xhttp.NotFoundResponse(c, "no scan run has finished yet")
		}
		return xhttp.SuccessResponse(c, &models.ScanRun{
			RunDate:     run.RunDate,
			GeneratedAt: run.GeneratedAt,
			Vectors:     clipVectors(run.Vectors, req.MinScore, req.Limit),
			Omitted:     run.Omitted,
			Universe:    run.Universe,
		})
	}

	runDate, ok := util.ParseDate(req.RunDate)
	if !ok {
		return xhttp.BadRequestResponse(c, "run_date must be YYYY-MM-DD")
	}
	entries, err := h.universe.Latest(c.Request().Context())
	if err != nil {
		h.logger.Error("latest universe read error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if len(entries) == 0 {
		return xhttp.NotFoundResponse(c, "no universe snapshot available; run a scan first")
	}
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}

	vectors, err := h.runner.Compute(c.Request().Context(), runDate, symbols, req.MinScore)
	if err != nil {
		h.logger.Error("signal compute error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, &models.ScanRun{
		RunDate:     runDate,
		GeneratedAt: time.Now().UTC(),
		Vectors:     clipVectors(vectors, req.MinScore, req.Limit),
		Universe:    len(symbols),
	})
}

// TopSignals returns the head of the latest run's ranking.
func (h *ScanHandler) TopSignals(c echo.Context) error {
	limit := util.ParseIntDefault(c.QueryParam("limit"), 10)
	minScore := util.ParseFloatDefault(c.QueryParam("min_score"), 0)
	run := h.pipeline.LastRun()
	if run == nil {
		return xhttp.NotFoundResponse(c, "no scan run has finished yet")
	}
	return xhttp.SuccessResponse(c, clipVectors(run.Vectors, minScore, limit))
}

// IngestReport returns the per-symbol fetch outcome of the latest run.
func (h *ScanHandler) IngestReport(c echo.Context) error {
	report := h.pipeline.LastReport()
	if report == nil {
		return xhttp.NotFoundResponse(c, "no scan run has finished yet")
	}
	return xhttp.SuccessResponse(c, report)
}

// Scan starts a pipeline run in the background. Only one run may be in
// flight; a second request gets 409 instead of doubling the upstream load.
func (h *ScanHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var runDate time.Time
	if req.RunDate != "" {
		d, ok := util.ParseDate(req.RunDate)
		if !ok {
			return xhttp.BadRequestResponse(c, "run_date must be YYYY-MM-DD")
		}
		runDate = d
	}

	if !h.scanning.CompareAndSwap(false, true) {
		return xhttp.DataResponse(c, http.StatusConflict, "a scan is already running")
	}
	go func() {
		defer h.scanning.Store(false)
		if _, err := h.pipeline.Run(context.Background(), runDate); err != nil {
			h.logger.Error("scan run failed", xlogger.Error(err))
		}
	}()
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "started"})
}

func clipVectors(vectors []models.SignalVector, minScore float64, limit int) []models.SignalVector {
	out := vectors
	if minScore > 0 {
		out = make([]models.SignalVector, 0, len(vectors))
		for _, v := range vectors {
			if v.Score >= minScore {
				out = append(out, v)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
