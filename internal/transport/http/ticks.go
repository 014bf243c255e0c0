package httpapi

import (
	"fmt"
	"strings"

	"tradepulse/internal/market"

	"github.com/tidwall/gjson"
)

// decodeTicks accepts one tick object, an array of them, or {"ticks": [...]}.
// Field names follow either the long form (symbol, price, volume, timestamp)
// or the Binance short form (s, p, q, T). Prices may be strings.
func decodeTicks(body []byte) ([]market.Tick, bool, error) {
	if !gjson.ValidBytes(body) {
		return nil, false, fmt.Errorf("body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if wrapped := root.Get("ticks"); wrapped.IsArray() {
		root = wrapped
	}
	if root.IsObject() {
		t, err := decodeTick(root)
		if err != nil {
			return nil, true, err
		}
		return []market.Tick{t}, true, nil
	}
	if !root.IsArray() {
		return nil, false, fmt.Errorf("expected a tick object or array")
	}
	var out []market.Tick
	var err error
	root.ForEach(func(idx, item gjson.Result) bool {
		var t market.Tick
		if t, err = decodeTick(item); err != nil {
			err = fmt.Errorf("tick %d: %w", idx.Int(), err)
			return false
		}
		out = append(out, t)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return out, false, nil
}

func decodeTick(obj gjson.Result) (market.Tick, error) {
	if !obj.IsObject() {
		return market.Tick{}, fmt.Errorf("tick must be an object")
	}
	sym := strings.TrimSpace(first(obj, "symbol", "s").String())
	if sym == "" {
		return market.Tick{}, fmt.Errorf("symbol is required")
	}
	price := first(obj, "price", "p", "c")
	if !price.Exists() {
		return market.Tick{}, fmt.Errorf("price is required")
	}
	return market.Tick{
		Symbol:    sym,
		Price:     price.Float(),
		Volume:    first(obj, "volume", "v", "q", "quantity").Float(),
		Timestamp: first(obj, "timestamp", "ts", "T", "E").Int(),
	}, nil
}

func first(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
