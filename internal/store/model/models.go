package model

import (
	"gorm.io/datatypes"
)

// SignalModel is one persisted strategy signal.
type SignalModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	SignalID      string         `gorm:"column:signal_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index:idx_signals_symbol_ts,priority:1"`
	StrategyID    string         `gorm:"column:strategy_id;index"`
	Side          string         `gorm:"column:side"`
	Confidence    float64        `gorm:"column:confidence"`
	Price         float64        `gorm:"column:price"`
	StopLoss      float64        `gorm:"column:stop_loss"`
	TakeProfit    float64        `gorm:"column:take_profit"`
	Timeframe     string         `gorm:"column:timeframe"`
	ReasonsJSON   datatypes.JSON `gorm:"column:reasons_json;type:TEXT"`
	Timestamp     int64          `gorm:"column:ts;index:idx_signals_symbol_ts,priority:2"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (SignalModel) TableName() string { return "signals" }

// BacktestResultModel keeps the summary columns of a run plus the full result
// as JSON.
type BacktestResultModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	RunID          string         `gorm:"column:run_id;uniqueIndex"`
	StrategyID     string         `gorm:"column:strategy_id;index"`
	Symbol         string         `gorm:"column:symbol;index"`
	Timeframe      string         `gorm:"column:timeframe"`
	StartUnix      int64          `gorm:"column:start_at"`
	EndUnix        int64          `gorm:"column:end_at"`
	InitialCapital float64        `gorm:"column:initial_capital"`
	FinalCapital   float64        `gorm:"column:final_capital"`
	TotalTrades    int            `gorm:"column:total_trades"`
	TotalReturn    float64        `gorm:"column:total_return"`
	WinRate        float64        `gorm:"column:win_rate"`
	MaxDrawdown    float64        `gorm:"column:max_drawdown"`
	Sharpe         float64        `gorm:"column:sharpe"`
	ConfigJSON     datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	ResultJSON     datatypes.JSON `gorm:"column:result_json;type:TEXT"`
	FinishedAtUnix int64          `gorm:"column:finished_at;index"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (BacktestResultModel) TableName() string { return "backtest_results" }
