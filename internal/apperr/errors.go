// Package apperr defines the error kinds shared by the backtest, the live
// signal engine and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDataUnavailable = errors.New("data unavailable")
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrPersistence     = errors.New("persistence failure")
	ErrStaleTick       = errors.New("stale tick")
	ErrNotFound        = errors.New("not found")
)

// Error attaches symbol/strategy context to one of the sentinel kinds.
type Error struct {
	Kind     error
	Op       string
	Symbol   string
	Strategy string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	var ctx []string
	if e.Symbol != "" {
		ctx = append(ctx, "symbol="+e.Symbol)
	}
	if e.Strategy != "" {
		ctx = append(ctx, "strategy="+e.Strategy)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New builds an *Error of the given kind.
func New(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Invalid is shorthand for an InvalidConfig error with a formatted cause.
func Invalid(op, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) WithSymbol(symbol string) *Error {
	e.Symbol = symbol
	return e
}

func (e *Error) WithStrategy(id string) *Error {
	e.Strategy = id
	return e
}

// KindOf reports which sentinel err matches, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidConfig, ErrUnknownStrategy, ErrDataUnavailable, ErrStaleTick, ErrNotFound, ErrPersistence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
