package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/engine"
	"tradepulse/internal/gateway/notifier"
	"tradepulse/internal/indicator"
	"tradepulse/internal/logger"
	"tradepulse/internal/strategy"

	"github.com/google/uuid"
)

const (
	defaultHistoryCap = 500
	defaultQueueSize  = 64
)

// Alert is one fired rule.
type Alert struct {
	ID         string `json:"id"`
	RuleID     string `json:"rule_id"`
	RuleName   string `json:"rule_name"`
	Symbol     string `json:"symbol"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
	Delivered  bool   `json:"delivered"`
	DeliveryMs int64  `json:"delivery_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Stats struct {
	TotalRules     int     `json:"total_rules"`
	ActiveRules    int     `json:"active_rules"`
	TotalTriggers  int     `json:"total_triggers"`
	Delivered      int     `json:"delivered"`
	AvgDeliveryMs  float64 `json:"avg_delivery_ms"`
	Dropped        int64   `json:"dropped"`
}

type Options struct {
	HistoryCap int
	QueueSize  int
	Now        func() time.Time
}

// marketState is the latest known view of one symbol.
type marketState struct {
	price, volume float64
	hasPrice      bool
	snap          *indicator.Snapshot
	confidence    float64
	hasSignal     bool
}

type condKey struct {
	rule string
	idx  int
	sym  string
}

type delivery struct {
	alertID string
	text    string
}

// Manager owns the rule set, the alert history and the delivery queue.
type Manager struct {
	notifier notifier.TextNotifier
	now      func() time.Time
	cap      int

	mu      sync.Mutex
	rules   []*Rule
	state   map[string]*marketState
	prev    map[condKey]float64
	history []Alert
	dropped int64
	subs    []func(Alert)

	queue chan delivery
}

func NewManager(n notifier.TextNotifier, opts Options) *Manager {
	if n == nil {
		n = notifier.Log{Prefix: "[alert]"}
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = defaultHistoryCap
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		notifier: n,
		now:      opts.Now,
		cap:      opts.HistoryCap,
		state:    make(map[string]*marketState),
		prev:     make(map[condKey]float64),
		queue:    make(chan delivery, opts.QueueSize),
	}
}

// AddRule validates r and adds it. An empty ID is generated.
func (m *Manager) AddRule(r Rule) (Rule, error) {
	r, err := r.normalize()
	if err != nil {
		return Rule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	for _, existing := range m.rules {
		if existing.ID == r.ID {
			return Rule{}, apperr.Invalid("alert.add_rule", "rule %q already exists", r.ID)
		}
	}
	if r.Created == 0 {
		r.Created = m.now().UnixMilli()
	}
	r.LastTriggered, r.TriggerCount = 0, 0
	m.rules = append(m.rules, &r)
	return r, nil
}

func (m *Manager) RemoveRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			for k := range m.prev {
				if k.rule == id {
					delete(m.prev, k)
				}
			}
			return nil
		}
	}
	return apperr.New(apperr.ErrNotFound, "alert.remove_rule", fmt.Errorf("rule %q", id))
}

// Subscribe registers fn to be called for every fired alert, before delivery.
func (m *Manager) Subscribe(fn func(Alert)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Rules returns a copy of the rule set in insertion order.
func (m *Manager) Rules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, len(m.rules))
	for i, r := range m.rules {
		out[i] = *r
		out[i].Conditions = append([]Condition(nil), r.Conditions...)
	}
	return out
}

// History returns the newest alerts first. limit <= 0 returns everything.
func (m *Manager) History(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Stats{TotalRules: len(m.rules), Dropped: m.dropped}
	for _, r := range m.rules {
		if !r.Disabled {
			out.ActiveRules++
		}
		out.TotalTriggers += r.TriggerCount
	}
	var total int64
	for _, a := range m.history {
		if a.Delivered {
			out.Delivered++
			total += a.DeliveryMs
		}
	}
	if out.Delivered > 0 {
		out.AvgDeliveryMs = float64(total) / float64(out.Delivered)
	}
	return out
}

// OnUpdate records the tick and evaluates rules for its symbol. It has the
// engine.UpdateHook signature.
func (m *Manager) OnUpdate(upd engine.Update) {
	sym := upd.Tick.Symbol
	if sym == "" {
		return
	}
	m.mu.Lock()
	st := m.stateFor(sym)
	st.price, st.volume, st.hasPrice = upd.Tick.Price, upd.Tick.Volume, true
	if upd.Indicators != nil {
		st.snap = upd.Indicators
	}
	fired := m.evaluateLocked(sym, upd.Tick.Timestamp)
	m.mu.Unlock()
	m.enqueue(fired)
}

// OnSignal records the signal confidence and evaluates rules for its symbol.
// It has the engine.SignalHook signature.
func (m *Manager) OnSignal(sig strategy.Signal) {
	if sig.Symbol == "" {
		return
	}
	m.mu.Lock()
	st := m.stateFor(sig.Symbol)
	st.confidence, st.hasSignal = sig.Confidence, true
	fired := m.evaluateLocked(sig.Symbol, sig.Timestamp)
	m.mu.Unlock()
	m.enqueue(fired)
}

func (m *Manager) stateFor(sym string) *marketState {
	st, ok := m.state[sym]
	if !ok {
		st = &marketState{}
		m.state[sym] = st
	}
	return st
}

// value resolves the current market value a condition refers to.
func (m *Manager) value(c Condition, sym string) (float64, bool) {
	if c.Symbol != "" {
		sym = c.Symbol
	}
	st, ok := m.state[sym]
	if !ok {
		return 0, false
	}
	switch c.Type {
	case KindPrice:
		return st.price, st.hasPrice
	case KindVolume:
		return st.volume, st.hasPrice
	case KindSignal:
		return st.confidence, st.hasSignal
	case KindIndicator:
		if st.snap == nil {
			return 0, false
		}
		return st.snap.Lookup(c.Indicator)
	}
	return 0, false
}

// evaluateLocked checks every active rule that involves sym. Every condition
// is evaluated so crossing state stays current even when the outcome is
// already decided. at is the market time in unix ms.
func (m *Manager) evaluateLocked(sym string, at int64) []Alert {
	if at <= 0 {
		at = m.now().UnixMilli()
	}
	var fired []Alert
	for _, r := range m.rules {
		if r.Disabled || !r.matches(sym) {
			continue
		}
		met := r.Logic == LogicAnd
		for i, c := range r.Conditions {
			condSym := sym
			if c.Symbol != "" {
				condSym = c.Symbol
			}
			key := condKey{rule: r.ID, idx: i, sym: condSym}
			cur, ok := m.value(c, sym)
			var hit bool
			if ok {
				prev, hasPrev := m.prev[key]
				hit = compare(c.Operator, c.Value, cur, prev, hasPrev)
				m.prev[key] = cur
			}
			if r.Logic == LogicAnd {
				met = met && hit
			} else {
				met = met || hit
			}
		}
		if !met {
			continue
		}
		if r.LastTriggered > 0 && at-r.LastTriggered < int64(r.CooldownMinutes)*60_000 {
			continue
		}
		r.LastTriggered = at
		r.TriggerCount++
		a := Alert{
			ID:        uuid.NewString(),
			RuleID:    r.ID,
			RuleName:  r.Name,
			Symbol:    sym,
			Message:   m.message(r, sym),
			Timestamp: at,
		}
		m.history = append(m.history, a)
		if over := len(m.history) - m.cap; over > 0 {
			m.history = append([]Alert(nil), m.history[over:]...)
		}
		fired = append(fired, a)
	}
	return fired
}

func (m *Manager) message(r *Rule, sym string) string {
	if r.Message != "" {
		return r.Message
	}
	parts := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		parts[i] = c.describe(sym)
	}
	return strings.Join(parts, " "+string(r.Logic)+" ")
}

func (m *Manager) enqueue(fired []Alert) {
	if len(fired) == 0 {
		return
	}
	m.mu.Lock()
	subs := append([]func(Alert){}, m.subs...)
	m.mu.Unlock()
	for _, a := range fired {
		logger.Infof("[alert] %s fired on %s: %s", a.RuleName, a.Symbol, a.Message)
		for _, fn := range subs {
			fn(a)
		}
		msg := notifier.StructuredMessage{
			Icon:      "🔔",
			Title:     a.RuleName,
			Sections:  []notifier.MessageSection{{Title: a.Symbol, Lines: []string{a.Message}}},
			Timestamp: time.UnixMilli(a.Timestamp),
		}
		select {
		case m.queue <- delivery{alertID: a.ID, text: msg.RenderMarkdown()}:
		default:
			m.mu.Lock()
			m.dropped++
			m.mu.Unlock()
			logger.Warnf("[alert] delivery queue full, dropped %s", a.ID)
		}
	}
}

// Run delivers queued alerts until ctx is cancelled, then flushes what is
// already queued.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case d := <-m.queue:
			m.deliver(d)
		case <-ctx.Done():
			for {
				select {
				case d := <-m.queue:
					m.deliver(d)
				default:
					return nil
				}
			}
		}
	}
}

func (m *Manager) deliver(d delivery) {
	started := time.Now()
	err := m.notifier.SendText(d.text)
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		logger.Warnf("[alert] deliver %s: %v", d.alertID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID != d.alertID {
			continue
		}
		if err != nil {
			m.history[i].Error = err.Error()
		} else {
			m.history[i].Delivered = true
			m.history[i].DeliveryMs = elapsed
		}
		return
	}
}
