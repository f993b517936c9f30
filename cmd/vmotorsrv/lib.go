package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.jpl.nasa.gov/bdube/vmotor/comm"
	"github.jpl.nasa.gov/bdube/vmotor/generichttp"
	"github.jpl.nasa.gov/bdube/vmotor/motion"
	"github.jpl.nasa.gov/bdube/vmotor/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/vmotor/sim"
	"github.jpl.nasa.gov/bdube/vmotor/util"
	"github.jpl.nasa.gov/bdube/vmotor/vmotor"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// ControllerSetup holds the arguments of one VirtualMotorCreateController
// call, and how the controller is served over HTTP
type ControllerSetup struct {
	// Port is the name of the controller
	Port string `yaml:"Port" koanf:"Port"`

	// Link is the name of an entry in Links
	Link string `yaml:"Link" koanf:"Link"`

	// NumAxes is the number of axes on the controller
	NumAxes int `yaml:"NumAxes" koanf:"NumAxes"`

	// MovingPollMs is the poll period in milliseconds while any axis is moving
	MovingPollMs int `yaml:"MovingPollMs" koanf:"MovingPollMs"`

	// IdlePollMs is the poll period in milliseconds while no axis is moving
	IdlePollMs int `yaml:"IdlePollMs" koanf:"IdlePollMs"`

	// DeferAxes leaves the axes uncreated; each is then made with
	// VirtualMotorCreateAxis from the shell
	DeferAxes bool `yaml:"DeferAxes" koanf:"DeferAxes"`

	// Endpoint is the URL the routes of this controller are served under,
	// ex. Endpoint="/vm0" will produce routes of /vm0/axis/0/pos, etc.
	// If empty, the controller is not served.
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Velocity, BaseVelocity, and Acceleration are used for moves made over HTTP
	Velocity     float64 `yaml:"Velocity" koanf:"Velocity"`
	BaseVelocity float64 `yaml:"BaseVelocity" koanf:"BaseVelocity"`
	Acceleration float64 `yaml:"Acceleration" koanf:"Acceleration"`

	// Limits are software limits by axis number, ex. "0": {Min: -100, Max: 100}
	Limits map[string]util.Limiter `yaml:"Limits" koanf:"Limits"`
}

// Profile returns the velocity profile of the setup, with the device
// defaults for anything not given
func (s ControllerSetup) Profile() vmotor.Profile {
	p := vmotor.DefaultProfile
	if s.Velocity != 0 {
		p.Velocity = s.Velocity
	}
	if s.BaseVelocity != 0 {
		p.BaseVelocity = s.BaseVelocity
	}
	if s.Acceleration != 0 {
		p.Acceleration = s.Acceleration
	}
	return p
}

// ControllerConfig converts the setup to the arguments of a controller
func (s ControllerSetup) ControllerConfig() vmotor.ControllerConfig {
	return vmotor.ControllerConfig{
		Port:       s.Port,
		Link:       s.Link,
		NumAxes:    s.NumAxes,
		MovingPoll: util.MsToDuration(s.MovingPollMs),
		IdlePoll:   util.MsToDuration(s.IdlePollMs),
		DeferAxes:  s.DeferAxes}
}

// Config is a struct that holds the initialization parameters for the
// server.  It is to be populated by koanf.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock replaces every link with a simulated controller served in-process
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// MockAxes is the number of axes each simulated controller has
	MockAxes int `yaml:"MockAxes" koanf:"MockAxes"`

	// Links are the connections to devices
	Links []comm.LinkConfig `yaml:"Links" koanf:"Links"`

	// Controllers are the virtual motor controllers to create
	Controllers []ControllerSetup `yaml:"Controllers" koanf:"Controllers"`
}

// System is everything built from a Config
type System struct {
	Links    *comm.Links
	Registry *vmotor.Registry
	Poller   *motion.Poller

	mocks []net.Listener
}

// Close stops polling and any simulators
func (s *System) Close() {
	s.Poller.Stop()
	for _, ln := range s.mocks {
		ln.Close()
	}
}

// startMock serves a simulated controller on a loopback port and returns its address
func startMock(axes int) (net.Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	ctl := sim.NewController(axes, nil)
	go ctl.Serve(ln)
	return ln, nil
}

// Build configures the links and controllers in c and starts polling them
func Build(ctx context.Context, c Config) (*System, error) {
	s := &System{Links: comm.NewLinks(), Poller: motion.NewPoller(ctx)}
	for _, l := range c.Links {
		if c.Mock {
			axes := c.MockAxes
			if axes < 1 {
				axes = 8
			}
			ln, err := startMock(axes)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.mocks = append(s.mocks, ln)
			log.Printf("link %s is simulated at %s\n", l.Name, ln.Addr())
			l.Addr = ln.Addr().String()
			l.Serial = false
		}
		if err := s.Links.Configure(l); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.Registry = vmotor.NewRegistry(func(link string) (vmotor.Transport, error) {
		rd, err := s.Links.Connect(link)
		if err != nil {
			return nil, err
		}
		return rd, nil
	}, s.Poller)
	for _, ctl := range c.Controllers {
		if _, err := s.Registry.Configure(ctl.ControllerConfig()); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// BuildMux serves every controller with an Endpoint under it.
// The mux serves two special routes: /endpoints, which returns a map of
// endpoint => routes as JSON, and /report, which reports every controller.
func BuildMux(c Config, s *System) (chi.Router, error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}
	for _, setup := range c.Controllers {
		if setup.Endpoint == "" {
			continue
		}
		ctl, ok := s.Registry.Find(setup.Port)
		if !ok {
			return nil, vmotor.ErrPortNotFound{Port: setup.Port}
		}
		port := setup.Port
		httper := vmotor.NewHTTPWrapper(ctl, setup.Profile(), setup.Limits, func() {
			s.Registry.Wake(port)
		})

		// prepare the URL, "vm0" => "/vm0"
		hndlS := generichttp.SubMuxSanitize(setup.Endpoint)
		if _, ok := supergraph[hndlS]; ok {
			return nil, fmt.Errorf("endpoint %s is used by more than one controller", hndlS)
		}

		// add a lock interface for this controller
		lock := locker.New()
		locker.Inject(httper, lock)

		supergraph[hndlS] = httper.RT().Endpoints()

		r := chi.NewRouter()
		r.Use(httper.Middleware()...)
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, supergraph)
	})
	root.Get("/report", func(w http.ResponseWriter, r *http.Request) {
		level := 1
		if q := r.URL.Query().Get("level"); q != "" {
			l, err := strconv.Atoi(q)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			level = l
		}
		buf := &bytes.Buffer{}
		s.Registry.Report(buf, level)
		render.PlainText(w, r, buf.String())
	})
	return root, nil
}
