package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradepulse/internal/alert"
	"tradepulse/internal/backtest"
	"tradepulse/internal/engine"
	"tradepulse/internal/store"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"

	"github.com/gin-gonic/gin"
)

const maxTickBody = 1 << 20

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStats(c *gin.Context) {
	out := gin.H{"engine": s.engine.Stats(), "stream_clients": s.hub.Clients()}
	if s.alerts != nil {
		out["alerts"] = s.alerts.Stats()
	}
	if s.feed != nil {
		out["feed"] = s.feed.Stats()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStrategyList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.engine.Strategies()})
}

func (s *Server) handleStrategyAdd(c *gin.Context) {
	var st strategy.Strategy
	if err := c.ShouldBindJSON(&st); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.engine.AddStrategy(st); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (s *Server) handleStrategyRemove(c *gin.Context) {
	if err := s.engine.RemoveStrategy(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type backtestRequest struct {
	StrategyID     string     `json:"strategy_id" binding:"required"`
	Symbol         string     `json:"symbol" binding:"required"`
	Timeframe      string     `json:"timeframe"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	StartMs        int64      `json:"start_ms"`
	EndMs          int64      `json:"end_ms"`
	InitialCapital *float64   `json:"initial_capital"`
	Commission     *float64   `json:"commission"`
	Slippage       *float64   `json:"slippage"`
	RiskPerTrade   *float64   `json:"risk_per_trade"`
	MaxPositions   int        `json:"max_positions"`
	Threshold      float64    `json:"threshold"`
	WarmupBars     int        `json:"warmup_bars"`
	Exit           *exit.Spec `json:"exit"`
}

func (r backtestRequest) config(d BacktestDefaults) backtest.Config {
	pick := func(v *float64, def float64) float64 {
		if v != nil {
			return *v
		}
		return def
	}
	start, end := r.Start, r.End
	if start.IsZero() && r.StartMs > 0 {
		start = time.UnixMilli(r.StartMs).UTC()
	}
	if end.IsZero() && r.EndMs > 0 {
		end = time.UnixMilli(r.EndMs).UTC()
	}
	warmup := r.WarmupBars
	if warmup == 0 {
		warmup = d.WarmupBars
	}
	return backtest.Config{
		StrategyID:     r.StrategyID,
		Symbol:         r.Symbol,
		Timeframe:      r.Timeframe,
		Start:          start,
		End:            end,
		InitialCapital: pick(r.InitialCapital, d.InitialCapital),
		Commission:     pick(r.Commission, d.Commission),
		Slippage:       pick(r.Slippage, d.Slippage),
		RiskPerTrade:   pick(r.RiskPerTrade, d.RiskPerTrade),
		MaxPositions:   r.MaxPositions,
		Threshold:      r.Threshold,
		WarmupBars:     warmup,
		Exit:           r.Exit,
	}
}

func (s *Server) handleBacktestRun(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := s.bt.Run(c.Request.Context(), req.config(s.defaults))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleBacktestList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.bt.List()})
}

func (s *Server) handleBacktestDetail(c *gin.Context) {
	res, err := s.bt.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleBacktestHistory(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []backtest.Summary{}})
		return
	}
	runs, err := s.archive.ListBacktestResults(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGenerateSignal(c *gin.Context) {
	sig, err := s.engine.GenerateSignal(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err)
		return
	}
	// A nil signal means no strategy cleared the threshold: HOLD.
	c.JSON(http.StatusOK, gin.H{"signal": sig})
}

func (s *Server) handleSignalsActive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.engine.ActiveSignals()})
}

func (s *Server) handleSignalsHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.engine.SignalHistory(queryInt(c, "limit", 50))})
}

func (s *Server) handleSignalsStored(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusOK, gin.H{"signals": []strategy.Signal{}})
		return
	}
	sigs, err := s.archive.ListSignals(c.Request.Context(), store.SignalQuery{
		Symbol:     c.Query("symbol"),
		StrategyID: c.Query("strategy_id"),
		Limit:      queryInt(c, "limit", 50),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs})
}

type tickResult struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func (s *Server) handleTicks(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTickBody))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ticks, single, err := decodeTicks(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if single {
		upd, err := s.engine.Ingest(ctx, ticks[0])
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, upd)
		return
	}
	var (
		accepted int
		rejected []tickResult
		signals  []strategy.Signal
	)
	for i, t := range ticks {
		upd, err := s.engine.Ingest(ctx, t)
		if err != nil {
			rejected = append(rejected, tickResult{Index: i, Error: err.Error()})
			continue
		}
		accepted++
		signals = append(signals, upd.Signals...)
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "rejected": rejected, "signals": signals})
}

func (s *Server) handlePortfolioStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.PortfolioStats())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.engine.Positions()})
}

func (s *Server) handleOpenPosition(c *gin.Context) {
	var req struct {
		SignalID string  `json:"signal_id" binding:"required"`
		Quantity float64 `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pos, err := s.engine.OpenPosition(req.SignalID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pos)
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var price float64
	if raw := strings.TrimSpace(c.Query("price")); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 {
			badRequest(c, "price must be a non-negative number")
			return
		}
		price = p
	}
	pos, err := s.engine.ClosePosition(c.Param("id"), price)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleValidations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"validations": s.engine.PriceValidations(queryInt(c, "limit", 50))})
}

func (s *Server) handleValidationStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.DiscrepancyStats())
}

func (s *Server) handleAlertList(c *gin.Context) {
	if s.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"rules": []alert.Rule{}, "history": []alert.Alert{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rules":   s.alerts.Rules(),
		"history": s.alerts.History(queryInt(c, "limit", 100)),
		"stats":   s.alerts.Stats(),
	})
}

func (s *Server) handleAlertAdd(c *gin.Context) {
	if s.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alerts are disabled"})
		return
	}
	var r alert.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		badRequest(c, err.Error())
		return
	}
	added, err := s.alerts.AddRule(r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

func (s *Server) handleAlertRemove(c *gin.Context) {
	if s.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alerts are disabled"})
		return
	}
	if err := s.alerts.RemoveRule(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var _ LiveEngine = (*engine.Engine)(nil)
