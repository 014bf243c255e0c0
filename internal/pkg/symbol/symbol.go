package symbol

import (
	"strings"
)

// Class groups quote currencies by how they are priced.
type Class string

const (
	ClassStablecoin Class = "stablecoin"
	ClassFiat       Class = "fiat"
	ClassOther      Class = "other"
)

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "USD", "EUR", "BTC", "ETH", "BNB"}

type Symbol struct {
	Base  string
	Quote string
}

// Pair renders BASE/QUOTE.
func (s Symbol) Pair() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance renders the concatenated exchange form, e.g. BTCUSDT.
func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Class reports the quote class. USDT is its own stablecoin class; other
// USD-denominated quotes count as fiat.
func (s Symbol) Class() Class {
	switch {
	case s.Quote == "USDT":
		return ClassStablecoin
	case strings.Contains(s.Quote, "USD"):
		return ClassFiat
	default:
		return ClassOther
	}
}

// Parse accepts BTCUSDT, btc/usdt and BTC/USDT:USDT.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize returns the exchange form. Unparseable input is upper-cased and
// returned as is.
func Normalize(s string) string {
	if out := Parse(s).Binance(); out != "" {
		return out
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}

// SpreadRate is the assumed bid/ask spread as a fraction of price.
func SpreadRate(s string) float64 {
	switch Parse(s).Class() {
	case ClassStablecoin:
		return 0.0001
	case ClassFiat:
		return 0.00005
	default:
		return 0.0002
	}
}
