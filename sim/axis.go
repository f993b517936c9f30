// Package sim is a simulated virtual motor controller.  It speaks the same
// line protocol as the hardware, so the driver can be run without it.
//
// Each axis moves along a trapezoidal velocity profile: it accelerates from
// the base velocity to the velocity, cruises, and decelerates back to the base
// velocity at the target.  Moves too short to reach the velocity use a
// triangular profile instead.  Positions are computed from the clock when
// they are read; nothing runs in the background.
package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/vmotor/util"
)

// power-on state of every axis
const (
	DefaultVelocity     = 400.
	DefaultBaseVelocity = 0.
	DefaultAcceleration = 400.
	DefaultHighLimit    = 40000.
	DefaultLowLimit     = -40000.
)

var (
	// ErrHighLimit is generated by a move past the high limit when limits are enforced
	ErrHighLimit = errors.New("target position exceeds high limit")

	// ErrLowLimit is generated by a move past the low limit when limits are enforced
	ErrLowLimit = errors.New("target position exceeds low limit")

	// ErrMoving is generated when the position is redefined during a move
	ErrMoving = errors.New("axis is moving")
)

// Clock returns the current time
type Clock func() time.Time

// profile is one planned move.  Times are in seconds since start and
// distances are unsigned; dir carries the sign.
type profile struct {
	start  time.Time
	origin float64
	dir    float64

	base, peak float64
	acc, dec   float64

	tAcc, tConst, tDec float64
	distance           float64
}

// accelDistance is the distance covered accelerating from base to peak
func (p *profile) accelDistance() float64 {
	return (p.base + p.peak) / 2 * p.tAcc
}

func (p *profile) duration() float64 {
	return p.tAcc + p.tConst + p.tDec
}

// displacement is the unsigned distance covered t seconds into the move
func (p *profile) displacement(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t < p.tAcc:
		return p.base*t + p.acc*t*t/2
	case t < p.tAcc+p.tConst:
		return p.accelDistance() + p.peak*(t-p.tAcc)
	case t < p.duration():
		u := t - p.tAcc - p.tConst
		return p.accelDistance() + p.peak*p.tConst + p.peak*u - p.dec*u*u/2
	default:
		return p.distance
	}
}

// rampTime is the time to change between two velocities at rate a.  An
// acceleration that is not positive is treated as infinite.
func rampTime(from, to, a float64) float64 {
	if a <= 0 {
		return 0
	}
	return (to - from) / a
}

// plan makes a profile covering distance at velocity v
func plan(start time.Time, origin, dir, distance, base, v, acc, dec float64) *profile {
	if v < base {
		v = base
	}
	p := &profile{start: start, origin: origin, dir: dir, base: base, peak: v, acc: acc, dec: dec, distance: distance}
	p.tAcc = rampTime(base, v, acc)
	p.tDec = rampTime(base, v, dec)
	dAcc := (base + v) / 2 * p.tAcc
	dDec := (base + v) / 2 * p.tDec
	if distance < dAcc+dDec {
		// never reaches v
		p.peak = math.Sqrt(base*base + 2*distance*acc*dec/(acc+dec))
		p.tAcc = rampTime(base, p.peak, acc)
		p.tDec = rampTime(base, p.peak, dec)
		return p
	}
	if v > 0 {
		p.tConst = (distance - dAcc - dDec) / v
	}
	return p
}

// Axis is one simulated motor.  It is concurrent safe.
type Axis struct {
	mu    sync.Mutex
	clock Clock

	velocity, baseVelocity float64
	acceleration           float64
	highLimit, lowLimit    float64

	// EnforceLimits rejects moves to targets outside the limits
	EnforceLimits bool

	pos       float64
	direction bool
	prof      *profile
	aborting  bool
}

// NewAxis returns an idle axis at zero with the power-on settings.  A nil
// clock uses time.Now.
func NewAxis(clock Clock) *Axis {
	if clock == nil {
		clock = time.Now
	}
	return &Axis{
		clock:        clock,
		velocity:     DefaultVelocity,
		baseVelocity: DefaultBaseVelocity,
		acceleration: DefaultAcceleration,
		highLimit:    DefaultHighLimit,
		lowLimit:     DefaultLowLimit,
		direction:    true}
}

// update advances the axis to now, and finishes the move if it is over.
// The caller holds the lock.
func (a *Axis) update() float64 {
	if a.prof == nil {
		return a.pos
	}
	t := a.clock().Sub(a.prof.start).Seconds()
	if t >= a.prof.duration() {
		a.pos = a.prof.origin + a.prof.dir*a.prof.distance
		a.prof = nil
		a.aborting = false
		return a.pos
	}
	return a.prof.origin + a.prof.dir*a.prof.displacement(t)
}

// start begins a move of distance in direction dir at velocity v.
// The caller holds the lock.
func (a *Axis) start(from, dir, distance, v float64) {
	a.pos = from
	a.direction = dir > 0
	a.aborting = false
	if distance == 0 {
		a.prof = nil
		return
	}
	a.prof = plan(a.clock(), from, dir, distance, a.baseVelocity, v, a.acceleration, a.acceleration)
}

// Move moves to target, which is rounded to a whole count.  A move started
// during another replaces it, starting from the current position.
func (a *Axis) Move(target float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.EnforceLimits {
		if target > a.highLimit {
			return ErrHighLimit
		}
		if target < a.lowLimit {
			return ErrLowLimit
		}
	}
	target = math.Round(target)
	from := a.update()
	dir := 1.
	if target < from {
		dir = -1
	}
	a.start(from, dir, math.Abs(target-from), a.velocity)
	return nil
}

// MoveRelative moves by delta
func (a *Axis) MoveRelative(delta float64) error {
	a.mu.Lock()
	from := a.update()
	a.mu.Unlock()
	return a.Move(from + delta)
}

// Jog moves toward the high limit if v is positive, or the low limit if v is
// negative, at |v|.  A v of zero stops the axis.
func (a *Axis) Jog(v float64) {
	if v == 0 {
		a.Stop()
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	from := a.update()
	target, dir := a.highLimit, 1.
	if v < 0 {
		target, dir = a.lowLimit, -1
	}
	a.start(from, dir, math.Max(0, dir*(target-from)), math.Abs(v))
}

// Stop decelerates the axis to rest from wherever it is in its move.  It does
// nothing to an idle axis, an axis already stopping, or one decelerating to
// its target.
func (a *Axis) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.update()
	p := a.prof
	if p == nil || a.aborting {
		return
	}
	t := a.clock().Sub(p.start).Seconds()
	switch {
	case t < p.tAcc:
		p.peak = p.base + p.acc*t
		p.tAcc = t
		p.tConst = 0
		p.tDec = rampTime(p.base, p.peak, p.dec)
	case t < p.tAcc+p.tConst:
		p.tConst = t - p.tAcc
	default:
		return
	}
	p.distance = p.accelDistance() + p.peak*p.tConst + (p.base+p.peak)/2*p.tDec
	a.aborting = true
}

// Position returns the current position, rounded to a whole count
func (a *Axis) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return math.Round(a.update())
}

// SetPosition redefines the current position of an idle axis
func (a *Axis) SetPosition(pos float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.update()
	if a.prof != nil {
		return ErrMoving
	}
	a.pos = math.Round(pos)
	return nil
}

// Done is true when the axis is not moving
func (a *Axis) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.update()
	return a.prof == nil
}

// Status returns the status bitfield: bit 0 is the direction of the last
// move (1 positive), bit 1 done, bit 3 the high limit, and bit 4 the low limit
func (a *Axis) Status() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos := math.Round(a.update())
	st := 0
	st = util.SetBit(st, 0, a.direction)
	st = util.SetBit(st, 1, a.prof == nil)
	st = util.SetBit(st, 3, pos >= a.highLimit)
	st = util.SetBit(st, 4, pos <= a.lowLimit)
	return st
}

// SetVelocity sets the slew velocity of later moves.  The sign is ignored.
func (a *Axis) SetVelocity(v float64) {
	a.mu.Lock()
	a.velocity = math.Abs(v)
	a.mu.Unlock()
}

// Velocity returns the slew velocity
func (a *Axis) Velocity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.velocity
}

// SetBaseVelocity sets the starting velocity of later moves.  The sign is ignored.
func (a *Axis) SetBaseVelocity(v float64) {
	a.mu.Lock()
	a.baseVelocity = math.Abs(v)
	a.mu.Unlock()
}

// BaseVelocity returns the starting velocity
func (a *Axis) BaseVelocity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseVelocity
}

// SetAcceleration sets the acceleration and deceleration of later moves
func (a *Axis) SetAcceleration(acc float64) {
	a.mu.Lock()
	a.acceleration = math.Abs(acc)
	a.mu.Unlock()
}

// Acceleration returns the acceleration
func (a *Axis) Acceleration() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acceleration
}

// SetLimits sets the low and high limits, rounded to whole counts
func (a *Axis) SetLimits(low, high float64) {
	a.mu.Lock()
	a.lowLimit, a.highLimit = math.Round(low), math.Round(high)
	a.mu.Unlock()
}

// Limits returns the low and high limits
func (a *Axis) Limits() (float64, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lowLimit, a.highLimit
}
