// Package alert evaluates user rules against live market state and pushes
// the ones that fire through a notifier.
package alert

import (
	"fmt"
	"strconv"
	"strings"

	"tradepulse/internal/apperr"
	"tradepulse/internal/indicator"
	"tradepulse/internal/pkg/symbol"
)

type Kind string

const (
	KindPrice     Kind = "price"
	KindSignal    Kind = "signal"
	KindIndicator Kind = "indicator"
	KindVolume    Kind = "volume"
)

type Operator string

const (
	OpAbove        Operator = "above"
	OpBelow        Operator = "below"
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
)

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

const defaultCooldownMinutes = 60

// Condition compares one market value against Value. An empty Symbol matches
// whichever symbol is being observed. Signal conditions compare the latest
// signal confidence on the 0-1 scale.
type Condition struct {
	Type      Kind     `json:"type" yaml:"type"`
	Symbol    string   `json:"symbol,omitempty" yaml:"symbol"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     float64  `json:"value" yaml:"value"`
	Indicator string   `json:"indicator,omitempty" yaml:"indicator"`
}

func (c Condition) describe(sym string) string {
	if c.Symbol != "" {
		sym = c.Symbol
	}
	op := strings.ReplaceAll(string(c.Operator), "_", " ")
	val := strconv.FormatFloat(c.Value, 'f', -1, 64)
	switch c.Type {
	case KindIndicator:
		return fmt.Sprintf("%s %s %s %s", sym, c.Indicator, op, val)
	case KindSignal:
		return fmt.Sprintf("%s signal confidence %s %s", sym, op, val)
	default:
		return fmt.Sprintf("%s %s %s %s", sym, c.Type, op, val)
	}
}

type Rule struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Conditions      []Condition `json:"conditions"`
	Logic           Logic       `json:"logic"`
	CooldownMinutes int         `json:"cooldown_minutes"`
	Message         string      `json:"message,omitempty"`
	Disabled        bool        `json:"disabled,omitempty"`

	Created       int64 `json:"created"`
	LastTriggered int64 `json:"last_triggered,omitempty"`
	TriggerCount  int   `json:"trigger_count"`
}

// normalize fills defaults and rejects malformed rules with ErrInvalidConfig.
func (r Rule) normalize() (Rule, error) {
	const op = "alert.rule"
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return r, apperr.Invalid(op, "rule name is required")
	}
	if len(r.Conditions) == 0 {
		return r, apperr.Invalid(op, "rule %q has no conditions", r.Name)
	}
	switch Logic(strings.ToUpper(string(r.Logic))) {
	case "", LogicAnd:
		r.Logic = LogicAnd
	case LogicOr:
		r.Logic = LogicOr
	default:
		return r, apperr.Invalid(op, "rule %q: logic %q", r.Name, r.Logic)
	}
	if r.CooldownMinutes < 0 {
		return r, apperr.Invalid(op, "rule %q: negative cooldown", r.Name)
	}
	if r.CooldownMinutes == 0 {
		r.CooldownMinutes = defaultCooldownMinutes
	}
	conds := make([]Condition, len(r.Conditions))
	for i, c := range r.Conditions {
		c.Type = Kind(strings.ToLower(strings.TrimSpace(string(c.Type))))
		c.Operator = Operator(strings.ToLower(strings.TrimSpace(string(c.Operator))))
		if c.Symbol = strings.TrimSpace(c.Symbol); c.Symbol != "" {
			c.Symbol = symbol.Normalize(c.Symbol)
		}
		switch c.Type {
		case KindPrice, KindVolume, KindSignal:
		case KindIndicator:
			if _, ok := (indicator.Snapshot{}).Lookup(c.Indicator); !ok {
				return r, apperr.Invalid(op, "rule %q: unknown indicator %q", r.Name, c.Indicator)
			}
			c.Indicator = strings.ToLower(strings.TrimSpace(c.Indicator))
		default:
			return r, apperr.Invalid(op, "rule %q: condition type %q", r.Name, c.Type)
		}
		switch c.Operator {
		case OpAbove, OpBelow, OpCrossesAbove, OpCrossesBelow:
		default:
			return r, apperr.Invalid(op, "rule %q: operator %q", r.Name, c.Operator)
		}
		conds[i] = c
	}
	r.Conditions = conds
	return r, nil
}

// matches reports whether the rule cares about sym.
func (r Rule) matches(sym string) bool {
	for _, c := range r.Conditions {
		if c.Symbol == "" || c.Symbol == sym {
			return true
		}
	}
	return false
}

// compare applies op. prev is only consulted by the crossing operators and
// a crossing needs a known previous value.
func compare(op Operator, target, cur, prev float64, hasPrev bool) bool {
	switch op {
	case OpAbove:
		return cur > target
	case OpBelow:
		return cur < target
	case OpCrossesAbove:
		return hasPrev && prev <= target && cur > target
	case OpCrossesBelow:
		return hasPrev && prev >= target && cur < target
	}
	return false
}
