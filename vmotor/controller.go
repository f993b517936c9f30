// Package vmotor is a driver for the virtual motor controller.
//
// A Controller owns the link to one device and one Axis per motor.  Axis
// operations translate into the controller's ASCII protocol, and Poll decodes
// the device's replies into a motion.ParamStore.
//
// Callers serialize axis operations on a controller by holding its lock, the
// same way motion.Poller does:
//
//	c.Lock()
//	err := ax.Move(100, false, 0, 400, 400)
//	c.Unlock()
package vmotor

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/vmotor/motion"
)

var (
	// ErrNotConnected is generated by every exchange on a controller whose
	// link could not be connected
	ErrNotConnected = errors.New("controller is not connected to a link")

	// ErrAxisExists is generated when creating an axis that already exists
	ErrAxisExists = errors.New("axis already exists")
)

// ErrAxisOutOfRange is generated when an axis number is not in [0, NumAxes)
type ErrAxisOutOfRange struct {
	Axis    int
	NumAxes int
}

func (e ErrAxisOutOfRange) Error() string {
	return fmt.Sprintf("axis %d out of range, controller has %d axes", e.Axis, e.NumAxes)
}

// Transport performs one write-then-read exchange with the device.
// *comm.RemoteDevice satisfies it.
type Transport interface {
	OpenSendRecvClose([]byte) ([]byte, error)
}

// ConnectFunc binds a link name to a Transport
type ConnectFunc func(link string) (Transport, error)

// ControllerConfig holds the arguments used to create a controller
type ControllerConfig struct {
	// Port is the name the controller is known by
	Port string

	// Link is the name of the link the device is connected to
	Link string

	// NumAxes is the number of axes the controller supports
	NumAxes int

	// MovingPoll is the time between polls when any axis is moving
	MovingPoll time.Duration

	// IdlePoll is the time between polls when no axis is moving
	IdlePoll time.Duration

	// DeferAxes skips creating the axes; each must then be made with CreateAxis
	DeferAxes bool
}

// Controller is a virtual motor controller
type Controller struct {
	// the embedded mutex is the controller lock callers hold across axis
	// operations.  txMu guards a single exchange on the link.
	sync.Mutex

	cfg   ControllerConfig
	store motion.ParamStore

	txMu sync.Mutex
	conn Transport

	// axesMu guards the slots of axes, which CreateAxis fills after
	// construction
	axesMu sync.RWMutex
	axes   []*Axis
}

// NewController creates a controller and its axes.  A link that cannot be
// connected is logged, not returned; every exchange on the controller will
// then fail with ErrNotConnected and its axes will poll as a problem.
func NewController(cfg ControllerConfig, connect ConnectFunc, store motion.ParamStore) *Controller {
	if store == nil {
		store = motion.NewParams()
	}
	c := &Controller{
		cfg:   cfg,
		store: store,
		axes:  make([]*Axis, cfg.NumAxes)}

	conn, err := connect(cfg.Link)
	if err != nil {
		log.Printf("vmotor: %s cannot connect to virtual motor controller on link %s: %v\n", cfg.Port, cfg.Link, err)
	} else {
		c.conn = conn
	}

	if !cfg.DeferAxes {
		for i := range c.axes {
			c.axes[i] = newAxis(c, i)
		}
	}
	return c
}

// CreateAxis creates axis axisNo of a controller made with DeferAxes
func (c *Controller) CreateAxis(axisNo int) (*Axis, error) {
	c.Lock()
	defer c.Unlock()
	if axisNo < 0 || axisNo >= len(c.axes) {
		return nil, ErrAxisOutOfRange{axisNo, len(c.axes)}
	}
	if c.axisAt(axisNo) != nil {
		return nil, fmt.Errorf("%s axis %d: %w", c.cfg.Port, axisNo, ErrAxisExists)
	}
	ax := newAxis(c, axisNo)
	c.axesMu.Lock()
	c.axes[axisNo] = ax
	c.axesMu.Unlock()
	return ax, nil
}

// WriteRead sends cmd to the device and returns the reply.  Only one
// exchange is in flight on a controller at a time.
func (c *Controller) WriteRead(cmd string) (string, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	if c.conn == nil {
		return "", ErrNotConnected
	}
	resp, err := c.conn.OpenSendRecvClose([]byte(cmd))
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", c.cfg.Port, cmd, err)
	}
	return string(resp), nil
}

func (c *Controller) axisAt(i int) *Axis {
	c.axesMu.RLock()
	defer c.axesMu.RUnlock()
	return c.axes[i]
}

// Axis returns axis i.  It does not need the controller lock.
func (c *Controller) Axis(i int) (*Axis, error) {
	if i < 0 || i >= len(c.axes) {
		return nil, ErrAxisOutOfRange{i, len(c.axes)}
	}
	ax := c.axisAt(i)
	if ax == nil {
		return nil, fmt.Errorf("%s axis %d has not been created", c.cfg.Port, i)
	}
	return ax, nil
}

// Axes satisfies motion.Controller
func (c *Controller) Axes() []motion.Axis {
	c.axesMu.RLock()
	defer c.axesMu.RUnlock()
	out := make([]motion.Axis, 0, len(c.axes))
	for _, ax := range c.axes {
		if ax != nil {
			out = append(out, ax)
		}
	}
	return out
}

// Port satisfies motion.Controller
func (c *Controller) Port() string {
	return c.cfg.Port
}

// Link is the name of the link the controller was connected to
func (c *Controller) Link() string {
	return c.cfg.Link
}

// Connected is true if the link was connected at creation
func (c *Controller) Connected() bool {
	return c.conn != nil
}

// NumAxes is the number of axes the controller supports
func (c *Controller) NumAxes() int {
	return len(c.axes)
}

// PollPeriods satisfies motion.Controller
func (c *Controller) PollPeriods() (time.Duration, time.Duration) {
	return c.cfg.MovingPoll, c.cfg.IdlePoll
}

// Store is the parameter store the axes publish to
func (c *Controller) Store() motion.ParamStore {
	return c.store
}

// Report writes the controller configuration, then the generic per-axis
// report for level > 0
func (c *Controller) Report(w io.Writer, level int) {
	fmt.Fprintf(w, "virtual motor driver %s, numAxes=%d, moving poll period=%f, idle poll period=%f\n",
		c.cfg.Port, len(c.axes), c.cfg.MovingPoll.Seconds(), c.cfg.IdlePoll.Seconds())
	if level > 0 {
		fmt.Fprintf(w, "  link %s, connected=%v\n", c.cfg.Link, c.Connected())
	}
	motion.ReportAxes(w, c, c.store, level)
}
