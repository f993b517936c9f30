package main

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/vmotor/motion"
	"github.jpl.nasa.gov/bdube/vmotor/vmotor"

	"github.com/abiosoft/ishell"
	"github.com/theckman/yacspin"
)

// console holds the commands of the interactive shell.  Each takes the
// arguments typed after the command name.
type console struct {
	sys     *System
	profile vmotor.Profile

	// WaitTimeout bounds the wait command
	WaitTimeout time.Duration
}

func newConsole(sys *System) *console {
	return &console{sys: sys, profile: vmotor.DefaultProfile, WaitTimeout: time.Minute}
}

func argCount(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", a)
		}
		out[i] = v
	}
	return out, nil
}

const createControllerUsage = "VirtualMotorCreateController <port> <link> <numAxes> <movingPollMs> <idlePollMs> [defer]"

// CreateController is VirtualMotorCreateController.  With a trailing
// "defer" no axes are created; each is then made with CreateAxis.
func (s *console) CreateController(args []string) error {
	deferAxes := false
	if len(args) == 6 {
		if args[5] != "defer" {
			return fmt.Errorf("usage: %s", createControllerUsage)
		}
		deferAxes = true
		args = args[:5]
	}
	if err := argCount(args, 5, createControllerUsage); err != nil {
		return err
	}
	ints, err := parseInts(args[2:])
	if err != nil {
		return err
	}
	if !deferAxes {
		return s.sys.Registry.CreateController(args[0], args[1], ints[0], ints[1], ints[2])
	}
	_, err = s.sys.Registry.Configure(ControllerSetup{
		Port:         args[0],
		Link:         args[1],
		NumAxes:      ints[0],
		MovingPollMs: ints[1],
		IdlePollMs:   ints[2],
		DeferAxes:    true}.ControllerConfig())
	return err
}

// CreateAxis is VirtualMotorCreateAxis
func (s *console) CreateAxis(args []string) error {
	if err := argCount(args, 2, "VirtualMotorCreateAxis <port> <axis>"); err != nil {
		return err
	}
	axisNo, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%q is not an integer", args[1])
	}
	return s.sys.Registry.CreateAxis(args[0], axisNo)
}

// Report reports every controller, at level 1 if none is given
func (s *console) Report(args []string) (string, error) {
	level := 1
	if len(args) > 0 {
		l, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("%q is not an integer", args[0])
		}
		level = l
	}
	buf := &bytes.Buffer{}
	s.sys.Registry.Report(buf, level)
	return buf.String(), nil
}

// withAxis parses "<port> <axis> [value]" and runs f on the axis with the
// controller locked
func (s *console) withAxis(args []string, usage string, hasValue bool, f func(*vmotor.Axis, float64) error) error {
	n := 2
	if hasValue {
		n = 3
	}
	if err := argCount(args, n, usage); err != nil {
		return err
	}
	c, ok := s.sys.Registry.Find(args[0])
	if !ok {
		return vmotor.ErrPortNotFound{Port: args[0]}
	}
	axisNo, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%q is not an integer", args[1])
	}
	ax, err := c.Axis(axisNo)
	if err != nil {
		return err
	}
	var v float64
	if hasValue {
		v, err = strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", args[2])
		}
	}
	c.Lock()
	defer c.Unlock()
	return f(ax, v)
}

// command is withAxis for commands that start or stop motion; the poller is
// woken once the command has been sent
func (s *console) command(args []string, usage string, hasValue bool, f func(*vmotor.Axis, float64) error) error {
	err := s.withAxis(args, usage, hasValue, f)
	if err == nil {
		s.sys.Registry.Wake(args[0])
	}
	return err
}

// Move moves an axis to a position
func (s *console) Move(args []string) error {
	p := s.profile
	return s.command(args, "move <port> <axis> <position>", true, func(ax *vmotor.Axis, v float64) error {
		return ax.Move(v, false, p.BaseVelocity, p.Velocity, p.Acceleration)
	})
}

// MoveRel moves an axis by an offset
func (s *console) MoveRel(args []string) error {
	p := s.profile
	return s.command(args, "moverel <port> <axis> <offset>", true, func(ax *vmotor.Axis, v float64) error {
		return ax.Move(v, true, p.BaseVelocity, p.Velocity, p.Acceleration)
	})
}

// Jog moves an axis at a velocity until it is stopped
func (s *console) Jog(args []string) error {
	p := s.profile
	return s.command(args, "jog <port> <axis> <velocity>", true, func(ax *vmotor.Axis, v float64) error {
		return ax.MoveVelocity(p.BaseVelocity, v, p.Acceleration)
	})
}

// Stop aborts motion on an axis
func (s *console) Stop(args []string) error {
	p := s.profile
	return s.command(args, "stop <port> <axis>", false, func(ax *vmotor.Axis, _ float64) error {
		return ax.Stop(p.Acceleration)
	})
}

// SetPos redefines the position of an axis
func (s *console) SetPos(args []string) error {
	return s.withAxis(args, "setpos <port> <axis> <position>", true, func(ax *vmotor.Axis, v float64) error {
		return ax.SetPosition(v)
	})
}

// Status polls an axis and returns its parameters.  A failed poll is
// returned as the error.
func (s *console) Status(args []string) (string, error) {
	var snap map[motion.Param]float64
	err := s.withAxis(args, "status <port> <axis>", false, func(ax *vmotor.Axis, _ float64) error {
		if _, err := ax.Poll(); err != nil {
			return err
		}
		c, _ := s.sys.Registry.Find(args[0])
		snapper, ok := c.Store().(motion.Snapshotter)
		if !ok {
			return errors.New("the parameter store cannot be read back")
		}
		snap = snapper.Snapshot(ax.AxisNo())
		return nil
	})
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	motion.ReportParams(buf, snap)
	return buf.String(), nil
}

// done polls an axis once and reports if it has finished moving
func (s *console) done(args []string) (bool, error) {
	moving := true
	err := s.withAxis(args, "wait <port> <axis>", false, func(ax *vmotor.Axis, _ float64) error {
		m, err := ax.Poll()
		moving = m
		return err
	})
	return !moving, err
}

// Wait polls an axis until it is done or WaitTimeout passes
func (s *console) Wait(args []string) error {
	deadline := time.Now().Add(s.WaitTimeout)
	for {
		done, err := s.done(args)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("axis still moving after %v", s.WaitTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Links lists the names of the configured links
func (s *console) Links() string {
	return strings.Join(s.sys.Links.Names(), "\n")
}

// Ports lists the names of the controllers
func (s *console) Ports() string {
	return strings.Join(s.sys.Registry.Ports(), "\n")
}

// waitWithSpinner runs Wait while a spinner is shown
func (s *console) waitWithSpinner(c *ishell.Context) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[11],
		Suffix:          " waiting for " + strings.Join(c.Args, " axis "),
		StopMessage:     "done",
		StopFailMessage: "failed",
	})
	if err != nil {
		// no terminal to spin in
		if err := s.Wait(c.Args); err != nil {
			c.Err(err)
		}
		return
	}
	spinner.Start()
	if err := s.Wait(c.Args); err != nil {
		spinner.StopFail()
		c.Err(err)
		return
	}
	spinner.Stop()
}

func newShell(sys *System) *ishell.Shell {
	s := newConsole(sys)
	shell := ishell.New()
	shell.Println("virtual motor shell")

	noResult := func(f func([]string) error) func(*ishell.Context) {
		return func(c *ishell.Context) {
			if err := f(c.Args); err != nil {
				c.Err(err)
			}
		}
	}
	withResult := func(f func([]string) (string, error)) func(*ishell.Context) {
		return func(c *ishell.Context) {
			str, err := f(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			c.Print(str)
		}
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "VirtualMotorCreateController",
		Help: createControllerUsage,
		Func: noResult(s.CreateController),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "VirtualMotorCreateAxis",
		Help: "VirtualMotorCreateAxis <port> <axis>",
		Func: noResult(s.CreateAxis),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "report",
		Help: "report [level]",
		Func: withResult(s.Report),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "move",
		Help: "move <port> <axis> <position>",
		Func: noResult(s.Move),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "moverel",
		Help: "moverel <port> <axis> <offset>",
		Func: noResult(s.MoveRel),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "jog",
		Help: "jog <port> <axis> <velocity>",
		Func: noResult(s.Jog),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop <port> <axis>",
		Func: noResult(s.Stop),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "setpos",
		Help: "setpos <port> <axis> <position>",
		Func: noResult(s.SetPos),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "status <port> <axis>",
		Func: withResult(s.Status),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "wait",
		Help: "wait <port> <axis>",
		Func: s.waitWithSpinner,
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "links",
		Help: "list the links",
		Func: func(c *ishell.Context) {
			c.Println(s.Links())
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "ports",
		Help: "list the controllers",
		Func: func(c *ishell.Context) {
			c.Println(s.Ports())
		},
	})
	return shell
}
