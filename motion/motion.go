// Package motion contains the abstract interfaces a motion controller driver
// implements, and thin host-side pieces (parameter store, poll scheduler) that
// drive them.
package motion

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Param names a piece of axis state published by a driver
type Param string

const (
	// Position is the readback position, in device units
	Position Param = "position"

	// Direction is 1 when the last motion was in the positive direction
	Direction Param = "direction"

	// Done is 1 when the axis has finished moving
	Done Param = "done"

	// Moving is the complement of Done
	Moving Param = "moving"

	// HighLimit is 1 when the high limit switch is active
	HighLimit Param = "highLimit"

	// LowLimit is 1 when the low limit switch is active
	LowLimit Param = "lowLimit"

	// Problem is 1 when the last poll could not talk to the device
	Problem Param = "problem"
)

// AxisParams lists every Param, in the order they are reported
var AxisParams = []Param{Position, Direction, Done, Moving, HighLimit, LowLimit, Problem}

// ParamStore receives the state a driver decodes from its device.
// Values set are not visible to observers until CallParamCallbacks.
type ParamStore interface {
	// SetInteger sets an integer valued parameter on an axis
	SetInteger(axis int, p Param, v int)

	// SetDouble sets a floating point parameter on an axis
	SetDouble(axis int, p Param, v float64)

	// CallParamCallbacks flushes everything set since the last call to observers
	CallParamCallbacks(axis int)
}

// Axis is a single axis of a motion controller
type Axis interface {
	// AxisNo is the zero-based axis number
	AxisNo() int

	// Move moves to position, or by position if relative
	Move(position float64, relative bool, minVelocity, maxVelocity, acceleration float64) error

	// MoveVelocity jogs at maxVelocity; the sign gives the direction
	MoveVelocity(minVelocity, maxVelocity, acceleration float64) error

	// Stop aborts motion
	Stop(acceleration float64) error

	// SetPosition redefines the current position
	SetPosition(position float64) error

	// Poll reads the axis state into the parameter store and reports if the
	// axis is moving
	Poll() (bool, error)

	// Report writes a description of the axis
	Report(w io.Writer, level int)
}

// Controller is a collection of axes sharing one link to a device.
// Callers hold the lock for the duration of any axis operation.
type Controller interface {
	sync.Locker

	// Port is the name the controller is registered under
	Port() string

	// Axes returns the axes that exist, in axis number order
	Axes() []Axis

	// PollPeriods returns the polling periods used when any axis is moving
	// and when all are idle
	PollPeriods() (moving, idle time.Duration)

	// Report writes a description of the controller
	Report(w io.Writer, level int)
}

// Scheduler polls controllers
type Scheduler interface {
	// Start begins polling c
	Start(c Controller)

	// Wake requests prompt polling of the controller registered as port
	Wake(port string)
}

// Snapshotter can return the current values of an axis' parameters
type Snapshotter interface {
	Snapshot(axis int) map[Param]float64
}

// ReportAxes is the generic part of a controller report.  For level > 0 each
// axis reports itself, and for level > 1 the parameters of each axis are
// listed if store can provide them.
func ReportAxes(w io.Writer, c Controller, store ParamStore, level int) {
	if level <= 0 {
		return
	}
	snap, _ := store.(Snapshotter)
	for _, ax := range c.Axes() {
		ax.Report(w, level)
		if level > 1 && snap != nil {
			ReportParams(w, snap.Snapshot(ax.AxisNo()))
		}
	}
}

// ReportParams writes one line per parameter present in values, in the
// order of AxisParams followed by any others sorted by name
func ReportParams(w io.Writer, values map[Param]float64) {
	seen := make(map[Param]bool, len(values))
	for _, p := range AxisParams {
		if v, ok := values[p]; ok {
			fmt.Fprintf(w, "    %s=%g\n", p, v)
			seen[p] = true
		}
	}
	rest := []string{}
	for p := range values {
		if !seen[p] {
			rest = append(rest, string(p))
		}
	}
	sort.Strings(rest)
	for _, p := range rest {
		fmt.Fprintf(w, "    %s=%g\n", p, values[Param(p)])
	}
}
