package history

import (
	"sort"
	"strings"
	"time"

	"tradepulse/internal/apperr"
)

// Timeframe maps a bar size to its duration and the exchange interval.
type Timeframe struct {
	Key            string
	Duration       time.Duration
	SourceInterval string
}

var supportedTimeframes = map[string]Timeframe{
	"1m":  {Key: "1m", Duration: time.Minute, SourceInterval: "1m"},
	"3m":  {Key: "3m", Duration: 3 * time.Minute, SourceInterval: "3m"},
	"5m":  {Key: "5m", Duration: 5 * time.Minute, SourceInterval: "5m"},
	"15m": {Key: "15m", Duration: 15 * time.Minute, SourceInterval: "15m"},
	"30m": {Key: "30m", Duration: 30 * time.Minute, SourceInterval: "30m"},
	"1h":  {Key: "1h", Duration: time.Hour, SourceInterval: "1h"},
	"4h":  {Key: "4h", Duration: 4 * time.Hour, SourceInterval: "4h"},
	"1d":  {Key: "1d", Duration: 24 * time.Hour, SourceInterval: "1d"},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour, SourceInterval: "1w"},
}

// ParseTimeframe normalises a timeframe key.
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, apperr.Invalid("history.timeframe", "unsupported timeframe %q", input)
	}
	return tf, nil
}

// SupportedTimeframes returns the sorted keys.
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedTimeframes[keys[i]].Duration < supportedTimeframes[keys[j]].Duration
	})
	return keys
}

func (tf Timeframe) millis() int64 {
	return tf.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange snaps start/end (unix ms) to the bar grid with start <= end.
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	step := tf.millis()
	if end < start {
		start, end = end, start
	}
	alStart := alignDown(start, step)
	alEnd := alignDown(end, step)
	if alEnd < alStart {
		alEnd = alStart
	}
	return alStart, alEnd
}

// ExpectedCandles counts bars whose open time falls in [start, end].
func (tf Timeframe) ExpectedCandles(start, end int64) int64 {
	step := tf.millis()
	if end < start || step == 0 {
		return 0
	}
	return ((end - start) / step) + 1
}

// Gap is a closed range of missing open times.
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// FindGaps walks the grid from start to end and reports runs of open times
// missing from present, which must be sorted ascending.
func (tf Timeframe) FindGaps(present []int64, start, end int64) []Gap {
	step := tf.millis()
	if step <= 0 || end < start {
		return nil
	}
	var gaps []Gap
	idx := 0
	var open *Gap
	for ts := start; ts <= end; ts += step {
		for idx < len(present) && present[idx] < ts {
			idx++
		}
		if idx < len(present) && present[idx] == ts {
			if open != nil {
				gaps = append(gaps, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &Gap{From: ts, To: ts}
		} else {
			open.To = ts
		}
	}
	if open != nil {
		gaps = append(gaps, *open)
	}
	return gaps
}
