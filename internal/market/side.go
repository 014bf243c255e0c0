package market

import "strings"

// Side is the direction of a signal or position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
	SideExit  Side = "EXIT"
)

// ParseSide accepts any casing; unknown values map to FLAT.
func ParseSide(raw string) Side {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideLong:
		return SideLong
	case SideShort:
		return SideShort
	case SideExit:
		return SideExit
	default:
		return SideFlat
	}
}

// Direction is +1 for LONG, -1 for SHORT and 0 otherwise.
func (s Side) Direction() float64 {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

// Tradable reports whether a position can be opened on this side.
func (s Side) Tradable() bool {
	return s == SideLong || s == SideShort
}
