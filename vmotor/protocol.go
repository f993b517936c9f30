package vmotor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.jpl.nasa.gov/bdube/vmotor/util"
)

// the virtual motor speaks "<index> <VERB> [arg]", one command per line,
// with exactly one line in reply to every command.  Indices are one-based.
const (
	// VerbBaseVelocity sets the base (starting) velocity
	VerbBaseVelocity = "BAS"

	// VerbVelocity sets the slew velocity
	VerbVelocity = "VEL"

	// VerbAcceleration sets the acceleration and deceleration
	VerbAcceleration = "ACC"

	// VerbMoveAbs moves to an absolute position
	VerbMoveAbs = "MV"

	// VerbMoveRel moves by a relative amount
	VerbMoveRel = "MR"

	// VerbJog moves at a signed velocity until stopped
	VerbJog = "JOG"

	// VerbAbort stops motion
	VerbAbort = "AB"

	// VerbPosition redefines the current position
	VerbPosition = "POS"

	// VerbQueryPosition reads the position
	VerbQueryPosition = "POS?"

	// VerbQueryStatus reads the status bitfield
	VerbQueryStatus = "ST?"
)

// bit numbers in the ST? reply
const (
	bitDirection = 0
	bitDone      = 1
	bitHighLimit = 3
	bitLowLimit  = 4
)

var (
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
)

// Status is the decoded ST? bitfield
type Status struct {
	// Direction is true for motion in the positive direction
	Direction bool

	// Done is true when the axis is not moving
	Done bool

	// HighLimit is true when the high limit is active
	HighLimit bool

	// LowLimit is true when the low limit is active
	LowLimit bool
}

// StatusFromBitfield decodes an ST? reply
func StatusFromBitfield(b int) Status {
	return Status{
		Direction: util.GetBit(b, bitDirection),
		Done:      util.GetBit(b, bitDone),
		HighLimit: util.GetBit(b, bitHighLimit),
		LowLimit:  util.GetBit(b, bitLowLimit)}
}

// Bitfield is the inverse of StatusFromBitfield
func (s Status) Bitfield() int {
	b := 0
	b = util.SetBit(b, bitDirection, s.Direction)
	b = util.SetBit(b, bitDone, s.Done)
	b = util.SetBit(b, bitHighLimit, s.HighLimit)
	b = util.SetBit(b, bitLowLimit, s.LowLimit)
	return b
}

// NINT rounds to the nearest integer, with halves rounded away from zero
func NINT(f float64) int {
	if f > 0 {
		return int(math.Floor(f + 0.5))
	}
	return int(math.Ceil(f - 0.5))
}

// Command formats a command for the axis with the given one-based index.
// float64 arguments are written with six decimals, ints as integers.
func Command(index int, verb string, args ...interface{}) string {
	pieces := make([]string, 0, 2+len(args))
	pieces = append(pieces, strconv.Itoa(index), verb)
	for _, a := range args {
		switch v := a.(type) {
		case float64:
			pieces = append(pieces, fmt.Sprintf("%f", v))
		case int:
			pieces = append(pieces, strconv.Itoa(v))
		default:
			pieces = append(pieces, fmt.Sprint(v))
		}
	}
	return strings.Join(pieces, " ")
}

// atof converts the leading numeric part of s to a float, and returns zero
// if there is none.  A malformed reply is therefore indistinguishable from a
// reading of zero; the device's replies have always been decoded this way.
func atof(s string) float64 {
	m := leadingFloat.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(m, 64)
	return f
}

// atoi is atof for integers
func atoi(s string) int {
	m := leadingInt.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	i, _ := strconv.Atoi(m)
	return i
}
