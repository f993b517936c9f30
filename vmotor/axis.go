package vmotor

import (
	"fmt"
	"io"

	"github.jpl.nasa.gov/bdube/vmotor/motion"
)

// Axis is one motor on a virtual motor controller
type Axis struct {
	c      *Controller
	axisNo int

	// index is the one-based axis number used on the wire
	index int
}

func newAxis(c *Controller, axisNo int) *Axis {
	return &Axis{c: c, axisNo: axisNo, index: axisNo + 1}
}

// AxisNo satisfies motion.Axis
func (a *Axis) AxisNo() int {
	return a.axisNo
}

// Index is the one-based number the device knows the axis by
func (a *Axis) Index() int {
	return a.index
}

func (a *Axis) writeRead(verb string, args ...interface{}) (string, error) {
	return a.c.WriteRead(Command(a.index, verb, args...))
}

// sendAccelAndVelocity sends the base velocity, velocity, and acceleration.
// All three are always sent; the error is that of the last.
func (a *Axis) sendAccelAndVelocity(acceleration, velocity, baseVelocity float64) error {
	a.writeRead(VerbBaseVelocity, baseVelocity)
	a.writeRead(VerbVelocity, velocity)
	_, err := a.writeRead(VerbAcceleration, acceleration)
	return err
}

// Move moves the axis to position, or by position if relative.  Positions
// are rounded to the nearest whole step.
func (a *Axis) Move(position float64, relative bool, minVelocity, maxVelocity, acceleration float64) error {
	a.sendAccelAndVelocity(acceleration, maxVelocity, minVelocity)
	verb := VerbMoveAbs
	if relative {
		verb = VerbMoveRel
	}
	_, err := a.writeRead(verb, NINT(position))
	return err
}

// MoveVelocity jogs the axis at maxVelocity, the sign of which is the direction
func (a *Axis) MoveVelocity(minVelocity, maxVelocity, acceleration float64) error {
	a.sendAccelAndVelocity(acceleration, maxVelocity, minVelocity)
	_, err := a.writeRead(VerbJog, maxVelocity)
	return err
}

// Stop aborts motion.  The device uses its own deceleration; acceleration is
// ignored.
func (a *Axis) Stop(acceleration float64) error {
	_, err := a.writeRead(VerbAbort)
	return err
}

// SetPosition redefines the current position of the axis
func (a *Axis) SetPosition(position float64) error {
	_, err := a.writeRead(VerbPosition, NINT(position))
	return err
}

// Poll reads the position and status of the axis and publishes them.
// If the link fails, whatever was read before the failure is still
// published, and the Problem parameter is set.  Moving is only true if the
// status was read.
func (a *Axis) Poll() (bool, error) {
	moving, err := a.readStatus()
	store := a.c.store
	store.SetInteger(a.axisNo, motion.Problem, boolToInt(err != nil))
	store.CallParamCallbacks(a.axisNo)
	return moving, err
}

func (a *Axis) readStatus() (bool, error) {
	store := a.c.store
	// "0.00000"
	resp, err := a.writeRead(VerbQueryPosition)
	if err != nil {
		return false, err
	}
	store.SetDouble(a.axisNo, motion.Position, atof(resp))

	// "2"
	resp, err = a.writeRead(VerbQueryStatus)
	if err != nil {
		return false, err
	}
	st := StatusFromBitfield(atoi(resp))
	store.SetInteger(a.axisNo, motion.Direction, boolToInt(st.Direction))
	store.SetInteger(a.axisNo, motion.Done, boolToInt(st.Done))
	store.SetInteger(a.axisNo, motion.Moving, boolToInt(!st.Done))
	store.SetInteger(a.axisNo, motion.HighLimit, boolToInt(st.HighLimit))
	store.SetInteger(a.axisNo, motion.LowLimit, boolToInt(st.LowLimit))
	return !st.Done, nil
}

// Report writes the axis number and index for level > 0
func (a *Axis) Report(w io.Writer, level int) {
	if level > 0 {
		fmt.Fprintf(w, "  axis %d\n", a.axisNo)
		fmt.Fprintf(w, "  axis index %d\n", a.index)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
