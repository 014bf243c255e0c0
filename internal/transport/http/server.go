// Package httpapi exposes the live engine, backtester, alerts and stores over
// a gin JSON API plus a websocket signal stream.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tradepulse/internal/alert"
	"tradepulse/internal/backtest"
	"tradepulse/internal/engine"
	"tradepulse/internal/logger"
	"tradepulse/internal/market"
	"tradepulse/internal/store"
	"tradepulse/internal/strategy"

	"github.com/gin-gonic/gin"
)

// LiveEngine is the engine surface served over HTTP.
type LiveEngine interface {
	Ingest(ctx context.Context, tick market.Tick) (*engine.Update, error)
	GenerateSignal(ctx context.Context, symbol string) (*strategy.Signal, error)
	ActiveSignals() []strategy.Signal
	SignalHistory(limit int) []strategy.Signal
	PriceValidations(limit int) []engine.PriceValidation
	DiscrepancyStats() engine.DiscrepancyStats
	Positions() []engine.Position
	PortfolioStats() engine.PortfolioStats
	OpenPosition(signalID string, qty float64) (engine.Position, error)
	ClosePosition(id string, price float64) (engine.Position, error)
	Strategies() []strategy.Strategy
	AddStrategy(s strategy.Strategy) error
	RemoveStrategy(id string) error
	Stats() engine.Stats
}

type Backtester interface {
	Run(ctx context.Context, cfg backtest.Config) (*backtest.Result, error)
	Get(id string) (*backtest.Result, error)
	List() []backtest.Summary
}

// Archive is the read side of the persistent store.
type Archive interface {
	ListSignals(ctx context.Context, q store.SignalQuery) ([]strategy.Signal, error)
	ListBacktestResults(ctx context.Context, limit int) ([]backtest.Summary, error)
}

type Alerts interface {
	Rules() []alert.Rule
	History(limit int) []alert.Alert
	AddRule(r alert.Rule) (alert.Rule, error)
	RemoveRule(id string) error
	Stats() alert.Stats
}

// FeedStats reports live feed health.
type FeedStats interface {
	Stats() market.SourceStats
}

// BacktestDefaults fill fields a backtest request leaves out.
type BacktestDefaults struct {
	InitialCapital float64
	Commission     float64
	Slippage       float64
	RiskPerTrade   float64
	WarmupBars     int
}

type Config struct {
	Addr      string
	Engine    LiveEngine
	Backtests Backtester
	Archive   Archive
	Alerts    Alerts
	Hub       *Hub
	Feed      FeedStats
	Defaults  BacktestDefaults
}

type Server struct {
	addr     string
	engine   LiveEngine
	bt       Backtester
	archive  Archive
	alerts   Alerts
	hub      *Hub
	feed     FeedStats
	defaults BacktestDefaults
	router   *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("http server requires an engine")
	}
	if cfg.Backtests == nil {
		return nil, errors.New("http server requires a backtester")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}
	if cfg.Defaults.InitialCapital <= 0 {
		cfg.Defaults.InitialCapital = 10_000
	}
	if cfg.Defaults.RiskPerTrade <= 0 {
		cfg.Defaults.RiskPerTrade = 0.02
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:     cfg.Addr,
		engine:   cfg.Engine,
		bt:       cfg.Backtests,
		archive:  cfg.Archive,
		alerts:   cfg.Alerts,
		hub:      cfg.Hub,
		feed:     cfg.Feed,
		defaults: cfg.Defaults,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/stats", s.handleStats)

	api.GET("/strategies", s.handleStrategyList)
	api.POST("/strategies", s.handleStrategyAdd)
	api.DELETE("/strategies/:id", s.handleStrategyRemove)

	api.POST("/backtest/runs", s.handleBacktestRun)
	api.GET("/backtest/runs", s.handleBacktestList)
	api.GET("/backtest/runs/:id", s.handleBacktestDetail)
	api.GET("/backtest/history", s.handleBacktestHistory)

	// Static segments take priority over :symbol in gin's router.
	api.GET("/signals/active", s.handleSignalsActive)
	api.GET("/signals/history", s.handleSignalsHistory)
	api.GET("/signals/stored", s.handleSignalsStored)
	api.GET("/signals/:symbol", s.handleGenerateSignal)

	api.POST("/ticks", s.handleTicks)

	api.GET("/portfolio/stats", s.handlePortfolioStats)
	api.GET("/portfolio/positions", s.handlePositions)
	api.POST("/portfolio/positions", s.handleOpenPosition)
	api.DELETE("/portfolio/positions/:id", s.handleClosePosition)

	api.GET("/validations", s.handleValidations)
	api.GET("/validations/stats", s.handleValidationStats)

	api.GET("/alerts", s.handleAlertList)
	api.POST("/alerts", s.handleAlertAdd)
	api.DELETE("/alerts/:id", s.handleAlertRemove)

	api.GET("/stream", s.handleStream)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.hub.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debugf("[http] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started))
	}
}
