package sim

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
)

// Controller is a simulated controller with one or more axes
type Controller struct {
	// Axes are numbered from one on the wire; Axes[0] is axis 1
	Axes []*Axis

	// Verbose logs every command and reply
	Verbose bool
}

// NewController returns a controller with n idle axes sharing clock
func NewController(n int, clock Clock) *Controller {
	c := &Controller{Axes: make([]*Axis, n)}
	for i := range c.Axes {
		c.Axes[i] = NewAxis(clock)
	}
	return c
}

func errReply(format string, args ...interface{}) string {
	return "ERR " + fmt.Sprintf(format, args...)
}

// Handle executes one command line, "<index> <VERB> [arg]", and returns the
// reply.  Commands reply OK, queries reply with the value, and anything that
// cannot be executed replies "ERR <reason>".
func (c *Controller) Handle(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return errReply("expected <axis> <command> [argument], got %q", line)
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil || idx < 1 || idx > len(c.Axes) {
		return errReply("bad axis %q", fields[0])
	}
	ax := c.Axes[idx-1]
	verb := fields[1]

	// queries and AB take no argument
	switch verb {
	case "POS?":
		return fmt.Sprintf("%.3f", ax.Position())
	case "ST?":
		return strconv.Itoa(ax.Status())
	case "VEL?":
		return fmt.Sprintf("%.3f", ax.Velocity())
	case "BAS?":
		return fmt.Sprintf("%.3f", ax.BaseVelocity())
	case "ACC?":
		return fmt.Sprintf("%.3f", ax.Acceleration())
	case "HL?":
		_, hi := ax.Limits()
		return fmt.Sprintf("%.3f", hi)
	case "LL?":
		lo, _ := ax.Limits()
		return fmt.Sprintf("%.3f", lo)
	case "AB":
		ax.Stop()
		return "OK"
	}

	if len(fields) != 3 {
		return errReply("%s takes one argument", verb)
	}
	arg, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return errReply("bad argument %q", fields[2])
	}
	switch verb {
	case "BAS":
		ax.SetBaseVelocity(arg)
	case "VEL":
		ax.SetVelocity(arg)
	case "ACC":
		ax.SetAcceleration(arg)
	case "MV":
		err = ax.Move(arg)
	case "MR":
		err = ax.MoveRelative(arg)
	case "JOG":
		ax.Jog(arg)
	case "POS":
		err = ax.SetPosition(arg)
	case "HL":
		lo, _ := ax.Limits()
		ax.SetLimits(lo, arg)
	case "LL":
		_, hi := ax.Limits()
		ax.SetLimits(arg, hi)
	default:
		return errReply("unknown command %s", verb)
	}
	if err != nil {
		return errReply("%v", err)
	}
	return "OK"
}

// Serve accepts connections on ln until it is closed, and answers
// '\r'-terminated command lines on each with '\r'-terminated replies.  The
// error from Accept is returned.
func (c *Controller) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go c.serveConn(conn)
	}
}

func (c *Controller) serveConn(conn net.Conn) {
	defer conn.Close()
	rdr := bufio.NewReader(conn)
	for {
		line, err := rdr.ReadString('\r')
		if err != nil {
			if err != io.EOF {
				log.Printf("sim: %s: %v\n", conn.RemoteAddr(), err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		resp := c.Handle(line)
		if c.Verbose {
			log.Printf("sim: %s -> %s\n", line, resp)
		}
		_, err = io.WriteString(conn, resp+"\r")
		if err != nil {
			log.Printf("sim: %s: %v\n", conn.RemoteAddr(), err)
			return
		}
	}
}
