package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradepulse/internal/backtest"
	"tradepulse/internal/market"
	"tradepulse/internal/store"
	"tradepulse/internal/store/model"
	"tradepulse/internal/strategy"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore implements store.Store on SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.SignalModel{}, &model.BacktestResultModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a couple of connections for concurrent HTTP reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StoreSignal inserts sig; a signal id already stored is left untouched.
func (s *GormStore) StoreSignal(ctx context.Context, sig strategy.Signal) error {
	reasons, err := json.Marshal(sig.Reasons)
	if err != nil {
		return err
	}
	row := model.SignalModel{
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		StrategyID:    sig.StrategyID,
		Side:          string(sig.Side),
		Confidence:    sig.Confidence,
		Price:         sig.Price,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
		Timeframe:     sig.Timeframe,
		ReasonsJSON:   datatypes.JSON(reasons),
		Timestamp:     sig.Timestamp,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "signal_id"}}, DoNothing: true}).
		Create(&row).Error
}

// StoreBacktestResult upserts by run id.
func (s *GormStore) StoreBacktestResult(ctx context.Context, res *backtest.Result) error {
	if res == nil {
		return nil
	}
	cfgJSON, err := json.Marshal(res.Config)
	if err != nil {
		return err
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return err
	}
	m := res.Report.Metrics
	row := model.BacktestResultModel{
		RunID:          res.ID,
		StrategyID:     res.Config.StrategyID,
		Symbol:         res.Config.Symbol,
		Timeframe:      res.Config.Timeframe,
		StartUnix:      res.Config.Start.Unix(),
		EndUnix:        res.Config.End.Unix(),
		InitialCapital: res.Config.InitialCapital,
		FinalCapital:   res.FinalCapital,
		TotalTrades:    m.TotalTrades,
		TotalReturn:    m.TotalReturn,
		WinRate:        m.WinRate,
		MaxDrawdown:    m.MaxDrawdown,
		Sharpe:         m.Sharpe,
		ConfigJSON:     datatypes.JSON(cfgJSON),
		ResultJSON:     datatypes.JSON(resJSON),
		FinishedAtUnix: res.FinishedAt.UnixMilli(),
		CreatedAtUnix:  time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

func (s *GormStore) ListSignals(ctx context.Context, q store.SignalQuery) ([]strategy.Signal, error) {
	tx := s.db.WithContext(ctx).Model(&model.SignalModel{})
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		tx = tx.Where("symbol = ?", sym)
	}
	if id := strings.TrimSpace(q.StrategyID); id != "" {
		tx = tx.Where("strategy_id = ?", id)
	}
	var rows []model.SignalModel
	if err := tx.Order("ts DESC").Order("id DESC").Limit(q.Size()).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]strategy.Signal, 0, len(rows))
	for _, r := range rows {
		var reasons []string
		if len(r.ReasonsJSON) > 0 {
			_ = json.Unmarshal(r.ReasonsJSON, &reasons)
		}
		out = append(out, strategy.Signal{
			ID:         r.SignalID,
			Symbol:     r.Symbol,
			Side:       market.ParseSide(r.Side),
			Confidence: r.Confidence,
			Price:      r.Price,
			Timestamp:  r.Timestamp,
			StopLoss:   r.StopLoss,
			TakeProfit: r.TakeProfit,
			Reasons:    reasons,
			StrategyID: r.StrategyID,
			Timeframe:  r.Timeframe,
		})
	}
	return out, nil
}

func (s *GormStore) ListBacktestResults(ctx context.Context, limit int) ([]backtest.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.BacktestResultModel
	err := s.db.WithContext(ctx).
		Omit("result_json", "config_json").
		Order("finished_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]backtest.Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, backtest.Summary{
			ID:          r.RunID,
			StrategyID:  r.StrategyID,
			Symbol:      r.Symbol,
			Timeframe:   r.Timeframe,
			TotalTrades: r.TotalTrades,
			TotalReturn: r.TotalReturn,
			WinRate:     r.WinRate,
			MaxDrawdown: r.MaxDrawdown,
			Sharpe:      r.Sharpe,
			FinishedAt:  time.UnixMilli(r.FinishedAtUnix).UTC(),
		})
	}
	return out, nil
}

// LoadBacktestResult returns the full stored result for a run.
func (s *GormStore) LoadBacktestResult(ctx context.Context, runID string) (*backtest.Result, error) {
	var row model.BacktestResultModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error; err != nil {
		return nil, err
	}
	var res backtest.Result
	if err := json.Unmarshal(row.ResultJSON, &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return &res, nil
}
