package config

import (
	"os"
	"path/filepath"
	"testing"

	"tradepulse/internal/alert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAndIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alerts.yaml", `
alerts:
  rules:
    - name: BTC high
      conditions:
        - {type: price, symbol: btc/usdt, operator: above, value: 70000}
`)
	path := writeFile(t, dir, "config.yaml", `
include: [alerts.yaml]
market:
  symbols: [btc/usdt, ETHUSDT, btcusdt]
  reference_prices:
    btcusdt: 65000
engine:
  auto_trade: true
backtest:
  commission: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, MarketModeBinance, cfg.Market.Mode)
	assert.Equal(t, "1m", cfg.Market.Timeframe)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, 65000.0, cfg.Market.ReferencePrices["BTCUSDT"])
	assert.Equal(t, 100, cfg.Engine.WindowSize)
	assert.Equal(t, 21, cfg.Engine.MinHistory)
	assert.True(t, cfg.Engine.AutoTrade)
	assert.Equal(t, 10000.0, cfg.Engine.PaperCapital)
	assert.Equal(t, 50, cfg.Backtest.WarmupBars)
	// explicitly set to zero, so the default does not apply
	assert.Equal(t, 0.0, cfg.Backtest.Commission)
	assert.Equal(t, 0.0005, cfg.Backtest.Slippage)
	assert.Equal(t, "ema", cfg.Indicators.SignalLine)
	assert.Equal(t, 500, cfg.Alerts.HistoryCap)

	require.Len(t, cfg.Alerts.Rules, 1)
	rule := cfg.Alerts.Rules[0].Rule()
	assert.Equal(t, "BTC high", rule.Name)
	assert.Equal(t, alert.KindPrice, rule.Conditions[0].Type)
	assert.Equal(t, alert.OpAbove, rule.Conditions[0].Operator)
	assert.Equal(t, 70000.0, rule.Conditions[0].Value)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"mode":        "market:\n  mode: paper\n",
		"timeframe":   "market:\n  timeframe: 7m\n",
		"history":     "engine:\n  window_size: 10\n  min_history: 20\n",
		"signal line": "indicators:\n  signal_line: fancy\n",
		"telegram":    "notify:\n  telegram:\n    enabled: true\n",
		"risk":        "backtest:\n  risk_per_trade: 2\n",
		"log format":  "app:\n  log_format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRADEPULSE_NOTIFY_TELEGRAM_BOT_TOKEN", "secret")
	path := writeFile(t, t.TempDir(), "config.yaml", `
notify:
  telegram:
    enabled: true
    bot_token: ""
    chat_id: "42"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Notify.Telegram.BotToken)
}

func TestLoadDotEnvAndResolvePath(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "TRADEPULSE_TEST_DOTENV=loaded\n")
	t.Setenv("TRADEPULSE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("TRADEPULSE_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(env, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("TRADEPULSE_TEST_DOTENV"))

	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "custom.yaml", ResolvePath("custom.yaml"))
	assert.Equal(t, "configs/config.yaml", ResolvePath(""))
	t.Setenv(EnvConfigPath, "/etc/tradepulse.yaml")
	assert.Equal(t, "/etc/tradepulse.yaml", ResolvePath("custom.yaml"))
}

func TestLoad_RepositoryConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Alerts.Rules, 2)
	assert.Equal(t, "configs/strategies.yaml", cfg.Strategies.Path)
}
