package vmotor

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/render"
	"github.jpl.nasa.gov/bdube/vmotor/generichttp"
	"github.jpl.nasa.gov/bdube/vmotor/generichttp/ascii"
	gmotion "github.jpl.nasa.gov/bdube/vmotor/generichttp/motion"
	"github.jpl.nasa.gov/bdube/vmotor/motion"
	"github.jpl.nasa.gov/bdube/vmotor/util"
)

// Profile is the velocity profile moves are made with
type Profile struct {
	BaseVelocity float64 `yaml:"BaseVelocity" koanf:"BaseVelocity"`
	Velocity     float64 `yaml:"Velocity" koanf:"Velocity"`
	Acceleration float64 `yaml:"Acceleration" koanf:"Acceleration"`
}

// DefaultProfile matches the power-on state of the device
var DefaultProfile = Profile{BaseVelocity: 0, Velocity: 400, Acceleration: 400}

// HTTPWrapper exposes a controller over HTTP.  Axes are named by their
// zero-based axis number.
type HTTPWrapper struct {
	c    *Controller
	wake func()

	mu       sync.Mutex
	profiles map[int]Profile
	def      Profile

	limiter *gmotion.LimitMiddleware

	// RouteTable holds the routes; see NewHTTPWrapper
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the generic motion routes, /raw,
// and /report bound.  Every axis moves with profile until its velocity is
// changed.  If limits is not empty, moves are checked against it by the
// middleware returned from Middleware.  wake is called after every command
// that starts or stops motion and may be nil.
func NewHTTPWrapper(c *Controller, profile Profile, limits map[string]util.Limiter, wake func()) *HTTPWrapper {
	if wake == nil {
		wake = func() {}
	}
	h := &HTTPWrapper{
		c:        c,
		wake:     wake,
		profiles: make(map[int]Profile),
		def:      profile}
	h.RouteTable = gmotion.NewHTTPMotionController(h).RT()
	ascii.InjectRawComm(h, h)
	h.RouteTable[generichttp.MethodPath{Method: http.MethodGet, Path: "/report"}] = h.Report
	if len(limits) > 0 {
		h.limiter = &gmotion.LimitMiddleware{Limits: limits, Mov: h}
		h.limiter.Inject(h)
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Middleware returns the middleware the routes must be served behind
func (h *HTTPWrapper) Middleware() []func(http.Handler) http.Handler {
	if h.limiter == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{h.limiter.Check}
}

// axis resolves a label to an axis.  Only the canonical decimal form is
// accepted, so "00" or "+0" cannot name axis 0 under a different key than
// the one its limits are stored under.
func (h *HTTPWrapper) axis(label string) (*Axis, error) {
	i, err := strconv.Atoi(label)
	if err != nil || strconv.Itoa(i) != label {
		return nil, fmt.Errorf("axis %q is not an axis number", label)
	}
	return h.c.Axis(i)
}

func (h *HTTPWrapper) profile(axisNo int) Profile {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.profiles[axisNo]; ok {
		return p
	}
	return h.def
}

// locked runs f on the named axis with the controller lock held
func (h *HTTPWrapper) locked(label string, f func(*Axis, Profile) error) error {
	ax, err := h.axis(label)
	if err != nil {
		return err
	}
	p := h.profile(ax.AxisNo())
	h.c.Lock()
	defer h.c.Unlock()
	return f(ax, p)
}

func (h *HTTPWrapper) snapshot(label string) (map[motion.Param]float64, error) {
	ax, err := h.axis(label)
	if err != nil {
		return nil, err
	}
	snap, ok := h.c.Store().(motion.Snapshotter)
	if !ok {
		return nil, errors.New("the parameter store cannot be read back")
	}
	return snap.Snapshot(ax.AxisNo()), nil
}

// GetPos returns the last polled position
func (h *HTTPWrapper) GetPos(axis string) (float64, error) {
	snap, err := h.snapshot(axis)
	if err != nil {
		return 0, err
	}
	pos, ok := snap[motion.Position]
	if !ok {
		return 0, fmt.Errorf("axis %s has not been polled", axis)
	}
	return pos, nil
}

// MoveAbs moves an axis to an absolute position
func (h *HTTPWrapper) MoveAbs(axis string, pos float64) error {
	return h.move(axis, pos, false)
}

// MoveRel moves an axis by a relative amount
func (h *HTTPWrapper) MoveRel(axis string, pos float64) error {
	return h.move(axis, pos, true)
}

func (h *HTTPWrapper) move(axis string, pos float64, relative bool) error {
	err := h.locked(axis, func(ax *Axis, p Profile) error {
		return ax.Move(pos, relative, p.BaseVelocity, p.Velocity, p.Acceleration)
	})
	if err == nil {
		h.wake()
	}
	return err
}

// DefinePos redefines the current position of an axis
func (h *HTTPWrapper) DefinePos(axis string, pos float64) error {
	err := h.locked(axis, func(ax *Axis, p Profile) error {
		return ax.SetPosition(pos)
	})
	if err == nil {
		h.wake()
	}
	return err
}

// Stop aborts motion on an axis
func (h *HTTPWrapper) Stop(axis string) error {
	err := h.locked(axis, func(ax *Axis, p Profile) error {
		return ax.Stop(p.Acceleration)
	})
	h.wake()
	return err
}

// Jog moves an axis at velocity v until stopped or a limit is reached
func (h *HTTPWrapper) Jog(axis string, v float64) error {
	err := h.locked(axis, func(ax *Axis, p Profile) error {
		return ax.MoveVelocity(p.BaseVelocity, v, p.Acceleration)
	})
	if err == nil {
		h.wake()
	}
	return err
}

// SetVelocity sets the velocity later moves of an axis are made with.
// Nothing is sent to the device until the next move.
func (h *HTTPWrapper) SetVelocity(axis string, v float64) error {
	ax, err := h.axis(axis)
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("velocity must be positive, got %f", v)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.profiles[ax.AxisNo()]
	if !ok {
		p = h.def
	}
	p.Velocity = v
	h.profiles[ax.AxisNo()] = p
	return nil
}

// GetVelocity returns the velocity moves of an axis are made with
func (h *HTTPWrapper) GetVelocity(axis string) (float64, error) {
	ax, err := h.axis(axis)
	if err != nil {
		return 0, err
	}
	return h.profile(ax.AxisNo()).Velocity, nil
}

// GetInPosition is true when the last poll found the axis done
func (h *HTTPWrapper) GetInPosition(axis string) (bool, error) {
	snap, err := h.snapshot(axis)
	if err != nil {
		return false, err
	}
	done, ok := snap[motion.Done]
	if !ok {
		return false, fmt.Errorf("axis %s has not been polled", axis)
	}
	return done == 1, nil
}

// GetStatus returns every parameter of the axis from the last poll
func (h *HTTPWrapper) GetStatus(axis string) (map[string]float64, error) {
	snap, err := h.snapshot(axis)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(snap))
	for k, v := range snap {
		out[string(k)] = v
	}
	return out, nil
}

// Raw sends a command as-is and returns the reply
func (h *HTTPWrapper) Raw(cmd string) (string, error) {
	h.c.Lock()
	defer h.c.Unlock()
	return h.c.WriteRead(cmd)
}

// Report responds with the controller report as text, at the level given by
// the level query parameter (default 1)
func (h *HTTPWrapper) Report(w http.ResponseWriter, r *http.Request) {
	level := 1
	if s := r.URL.Query().Get("level"); s != "" {
		var err error
		level, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	buf := &bytes.Buffer{}
	h.c.Lock()
	h.c.Report(buf, level)
	h.c.Unlock()
	render.PlainText(w, r, buf.String())
}
