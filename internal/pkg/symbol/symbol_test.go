package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Symbol
	}{
		{"BTCUSDT", Symbol{"BTC", "USDT"}},
		{" eth/usdc ", Symbol{"ETH", "USDC"}},
		{"BTC/USDT:USDT", Symbol{"BTC", "USDT"}},
		{"EURUSD", Symbol{"EUR", "USD"}},
		{"AAPL", Symbol{}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Parse(tc.in))
		})
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"btc/usdt", "BTCUSDT", "ethusdt", " ", "aapl"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "AAPL"}, got)
	assert.True(t, IsValid("solusdt"))
	assert.False(t, IsValid("sol"))
}

func TestSpreadRate(t *testing.T) {
	assert.Equal(t, 0.0001, SpreadRate("BTCUSDT"))
	assert.Equal(t, 0.00005, SpreadRate("BTCUSDC"))
	assert.Equal(t, 0.00005, SpreadRate("EURUSD"))
	assert.Equal(t, 0.0002, SpreadRate("ETHBTC"))
	assert.Equal(t, 0.0002, SpreadRate("AAPL"))
}
