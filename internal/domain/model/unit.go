package model

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the time unit bin widths are reported in.
type Unit string

// Supported reporting units.
const (
	UnitSecond      Unit = "s"
	UnitMillisecond Unit = "ms"
	UnitMicrosecond Unit = "us"
)

// ParseUnit accepts s, ms and us (plus a few spelled-out aliases).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "sec", "second", "seconds":
		return UnitSecond, nil
	case "ms", "millisecond", "milliseconds":
		return UnitMillisecond, nil
	case "us", "µs", "microsecond", "microseconds":
		return UnitMicrosecond, nil
	default:
		return "", fmt.Errorf("%w: unknown unit %q", ErrInvalidConfiguration, s)
	}
}

// Duration returns one unit as a time.Duration.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitMillisecond:
		return time.Millisecond
	case UnitMicrosecond:
		return time.Microsecond
	default:
		return time.Second
	}
}

// Express converts d into a magnitude in u.
func (u Unit) Express(d time.Duration) float64 {
	return float64(d) / float64(u.Duration())
}
