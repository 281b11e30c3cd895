package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/core"
)

const reportsRoot = "reports"

// ReportStore archives finished backtest results as JSON documents laid out as
// reports/<strategy>/<symbol>/<YYYYMMDD>/<id>.json
type ReportStore struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
}

func NewReportStore(storage Storage, logger ...*zap.Logger) *ReportStore {
	log := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	return &ReportStore{storage: storage, logger: log, now: time.Now}
}

// Save writes the result and returns its id. A result without an id gets a
// fresh uuid, which is also written back to r.
func (s *ReportStore) Save(ctx context.Context, r *backtest.Result) (string, error) {
	if r == nil {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("nil result"))
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("encoding report: %w", err))
	}

	p := s.reportPath(r)
	if err := s.storage.Write(ctx, p, data); err != nil {
		return "", err
	}

	s.logger.Info("report archived",
		zap.String("id", r.ID),
		zap.String("path", p),
		zap.String("strategy", r.Strategy),
		zap.String("symbol", r.Symbol),
	)
	return r.ID, nil
}

// Load reads a report by archive path or by id.
func (s *ReportStore) Load(ctx context.Context, ref string) (*backtest.Result, error) {
	p := ref
	if !strings.HasSuffix(ref, ".json") {
		found, err := s.find(ctx, ref)
		if err != nil {
			return nil, err
		}
		p = found
	}

	data, err := s.storage.Read(ctx, p)
	if err != nil {
		return nil, err
	}

	var r backtest.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("decoding %s: %w", p, err))
	}
	return &r, nil
}

// List returns archived report paths. Empty strategy or symbol widens the search.
func (s *ReportStore) List(ctx context.Context, strategyName, symbol string) ([]string, error) {
	prefix := reportsRoot
	if strategyName != "" {
		prefix = path.Join(prefix, strategyName)
		if symbol != "" {
			prefix = path.Join(prefix, symbol)
		}
	}

	paths, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if strategyName != "" || symbol == "" {
		return paths, nil
	}

	filtered := paths[:0]
	for _, p := range paths {
		// reports/<strategy>/<symbol>/...
		parts := strings.Split(p, "/")
		if len(parts) > 2 && parts[2] == symbol {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *ReportStore) find(ctx context.Context, id string) (string, error) {
	paths, err := s.storage.List(ctx, reportsRoot)
	if err != nil {
		return "", err
	}
	suffix := "/" + id + ".json"
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return p, nil
		}
	}
	return "", core.WrapError(core.ErrNoData, fmt.Errorf("report %s not found", id))
}

func (s *ReportStore) reportPath(r *backtest.Result) string {
	day := r.StartDate
	if day.IsZero() {
		day = s.now()
	}
	return path.Join(reportsRoot, r.Strategy, r.Symbol, day.UTC().Format("20060102"), r.ID+".json")
}
