// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Limiter imposes a closed interval on a value
type Limiter struct {
	Min float64 `json:"min" yaml:"Min" koanf:"Min"`
	Max float64 `json:"max" yaml:"Max" koanf:"Max"`
}

// Check returns true if Min <= input <= Max
func (l Limiter) Check(input float64) bool {
	return input >= l.Min && input <= l.Max
}

// Clamp restricts input to [low, high]
func Clamp(input, low, high float64) float64 {
	return math.Max(low, math.Min(input, high))
}

// SecsToDuration converts a floating point number of seconds to a duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// MsToDuration converts integer milliseconds, as found in config files, to a duration
func MsToDuration(ms int) time.Duration {
	return SecsToDuration(float64(ms) / 1000.)
}

// GetBit returns the value of a given bit in an integer
func GetBit(v int, bitIndex uint) bool {
	return (v>>bitIndex)&1 == 1
}

// SetBit returns v with bit bitIndex set or cleared
func SetBit(v int, bitIndex uint, value bool) int {
	if value {
		return v | (1 << bitIndex)
	}
	return v &^ (1 << bitIndex)
}
