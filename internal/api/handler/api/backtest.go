package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/api/job"
	"github.com/newthinker/tpsl/internal/api/response"
	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/collector"
	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/storage/archive"
	"github.com/newthinker/tpsl/internal/strategy"
)

const defaultBacktestTimeout = 5 * time.Minute

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`
	Start    string `json:"start"` // RFC3339 or YYYY-MM-DD
	End      string `json:"end"`
	Interval string `json:"interval,omitempty"`

	// Trade parameter overrides; zero values keep the strategy's own.
	SLPct     float64 `json:"sl_pct,omitempty"`
	TPPct     float64 `json:"tp_pct,omitempty"`
	Quantity  float64 `json:"quantity,omitempty"`
	Precision *int    `json:"precision,omitempty"`

	Archive bool `json:"archive,omitempty"`
}

// BacktestConfig wires a BacktestHandler.
type BacktestConfig struct {
	Jobs       *job.Store
	Backtester *backtest.Backtester
	Strategies *strategy.Registry
	Reports    *archive.ReportStore // nil disables archiving
	Interval   string               // default when the request omits one
	Timeout    time.Duration
	OnJobs     func(active int) // receives the active job count after every change
	Logger     *zap.Logger
}

// BacktestHandler runs backtests as background jobs.
type BacktestHandler struct {
	cfg    BacktestConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(cfg BacktestConfig) *BacktestHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBacktestTimeout
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BacktestHandler{cfg: cfg, logger: log, ctx: ctx, cancel: cancel}
}

// Create starts a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}

	if req.Symbol == "" || req.Strategy == "" {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrBadRequest, fmt.Errorf("symbol and strategy are required")))
		return
	}

	start, err := parseTime(req.Start)
	if err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}
	end, err := parseTime(req.End)
	if err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}
	if !end.After(start) {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrBadRequest, fmt.Errorf("end must be after start")))
		return
	}

	base, err := h.cfg.Strategies.MustGet(req.Strategy)
	if err != nil {
		response.Fail(w, err)
		return
	}

	params := base.Params().Apply(strategy.Config{
		SLPct:     req.SLPct,
		TPPct:     req.TPPct,
		Quantity:  req.Quantity,
		Precision: req.Precision,
	})
	if err := params.Validate(); err != nil {
		response.Fail(w, err)
		return
	}
	strat := strategy.WithParams(base, params)

	interval := req.Interval
	if interval == "" {
		interval = h.cfg.Interval
	}
	symbol := collector.NormalizeSymbol(req.Symbol, "USDT")
	if err := collector.ValidateSymbol(symbol); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}

	j, err := h.cfg.Jobs.Create(strat.Name(), symbol)
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.publishActive()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runBacktest(j.ID, strat, symbol, start, end, interval, req.Archive)
	}()

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (h *BacktestHandler) runBacktest(jobID string, strat strategy.Strategy, symbol string, start, end time.Time, interval string, archiveResult bool) {
	defer h.publishActive()

	h.cfg.Jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})
	h.publishActive()

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.Timeout)
	defer cancel()

	result, err := h.cfg.Backtester.Run(ctx, strat, symbol, start, end, interval)
	if err != nil {
		h.logger.Warn("backtest job failed",
			zap.String("job_id", jobID),
			zap.String("strategy", strat.Name()),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		detail := response.Detail(err)
		h.cfg.Jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = &detail
		})
		return
	}
	result.ID = jobID

	var reportID string
	if archiveResult && h.cfg.Reports != nil {
		reportID, err = h.cfg.Reports.Save(ctx, result)
		if err != nil {
			h.logger.Warn("archiving report failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	h.cfg.Jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = result
		j.ReportID = reportID
	})
}

// Get returns a backtest job.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.cfg.Jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, j)
}

// List returns job summaries without their results.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.cfg.Jobs.List()
	for i := range jobs {
		jobs[i].Result = nil
	}
	response.JSON(w, http.StatusOK, jobs)
}

// Close cancels running jobs and waits for them to finish.
func (h *BacktestHandler) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *BacktestHandler) publishActive() {
	if h.cfg.OnJobs != nil {
		h.cfg.OnJobs(h.cfg.Jobs.Active())
	}
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
