package vmotor

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.jpl.nasa.gov/bdube/vmotor/motion"
	"github.jpl.nasa.gov/bdube/vmotor/util"
)

// ErrPortNotFound is generated when a port name is not known to a Registry
type ErrPortNotFound struct {
	Port string
}

func (e ErrPortNotFound) Error() string {
	return fmt.Sprintf("port %s not found", e.Port)
}

// Registry holds the controllers that have been configured, by port name.
// It is the configuration entry point used by the shell and config file.
type Registry struct {
	// NewStore makes the parameter store for a new controller.  If nil, each
	// controller gets its own motion.Params.
	NewStore func(port string) motion.ParamStore

	mu      sync.Mutex
	connect ConnectFunc
	sched   motion.Scheduler
	ctls    map[string]*Controller
}

// NewRegistry returns a Registry that connects links with connect and starts
// polling new controllers with sched.  sched may be nil, in which case
// nothing is polled.
func NewRegistry(connect ConnectFunc, sched motion.Scheduler) *Registry {
	return &Registry{
		connect: connect,
		sched:   sched,
		ctls:    make(map[string]*Controller)}
}

// CreateController creates a controller named port on link, with numAxes
// axes, polled every movingPollMs milliseconds when any axis is moving and
// every idlePollMs when none are.  A link that cannot be connected is not an
// error.
func (r *Registry) CreateController(port, link string, numAxes, movingPollMs, idlePollMs int) error {
	_, err := r.Configure(ControllerConfig{
		Port:       port,
		Link:       link,
		NumAxes:    numAxes,
		MovingPoll: util.MsToDuration(movingPollMs),
		IdlePoll:   util.MsToDuration(idlePollMs)})
	return err
}

// Configure creates a controller from cfg, registers it, and starts polling it
func (r *Registry) Configure(cfg ControllerConfig) (*Controller, error) {
	if cfg.Port == "" {
		return nil, errors.New("port name is required")
	}
	if cfg.NumAxes < 1 {
		return nil, fmt.Errorf("port %s: number of axes must be at least 1, got %d", cfg.Port, cfg.NumAxes)
	}
	if cfg.MovingPoll <= 0 || cfg.IdlePoll <= 0 {
		return nil, fmt.Errorf("port %s: poll periods must be positive, got moving=%v idle=%v", cfg.Port, cfg.MovingPoll, cfg.IdlePoll)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctls[cfg.Port]; ok {
		return nil, fmt.Errorf("port %s already exists", cfg.Port)
	}
	var store motion.ParamStore
	if r.NewStore != nil {
		store = r.NewStore(cfg.Port)
	}
	c := NewController(cfg, r.connect, store)
	r.ctls[cfg.Port] = c
	if r.sched != nil {
		r.sched.Start(c)
	}
	return c, nil
}

// CreateAxis creates axis axisNo on the controller named port
func (r *Registry) CreateAxis(port string, axisNo int) error {
	c, ok := r.Find(port)
	if !ok {
		return ErrPortNotFound{port}
	}
	_, err := c.CreateAxis(axisNo)
	return err
}

// Find returns the controller named port
func (r *Registry) Find(port string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.ctls[port]
	return c, ok
}

// Ports returns the sorted names of every controller
func (r *Registry) Ports() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports := make([]string, 0, len(r.ctls))
	for k := range r.ctls {
		ports = append(ports, k)
	}
	sort.Strings(ports)
	return ports
}

// Wake asks the scheduler to poll port promptly, typically after a move
func (r *Registry) Wake(port string) {
	if r.sched != nil {
		r.sched.Wake(port)
	}
}

// Report reports every controller, in port order.  Each controller is
// locked while it reports.
func (r *Registry) Report(w io.Writer, level int) {
	for _, port := range r.Ports() {
		if c, ok := r.Find(port); ok {
			c.Lock()
			c.Report(w, level)
			c.Unlock()
		}
	}
}
