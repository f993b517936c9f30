// vmotorsim serves a simulated virtual motor controller over TCP, for use
// without hardware.  It is configured from the environment.
package main

import (
	"fmt"
	"log"
	"net"

	"github.jpl.nasa.gov/bdube/vmotor/sim"

	"github.com/caarlos0/env/v6"
)

type config struct {
	Addr          string  `env:"VMOTORSIM_ADDR" envDefault:":5000"`
	NumAxes       int     `env:"VMOTORSIM_AXES" envDefault:"8"`
	Verbose       bool    `env:"VMOTORSIM_VERBOSE" envDefault:"0"`
	EnforceLimits bool    `env:"VMOTORSIM_ENFORCE_LIMITS" envDefault:"0"`
	HighLimit     float64 `env:"VMOTORSIM_HIGH_LIMIT" envDefault:"40000"`
	LowLimit      float64 `env:"VMOTORSIM_LOW_LIMIT" envDefault:"-40000"`
}

func loadConfig() (config, error) {
	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.NumAxes < 1 {
		return cfg, fmt.Errorf("VMOTORSIM_AXES must be at least 1, got %d", cfg.NumAxes)
	}
	return cfg, nil
}

func newController(cfg config) *sim.Controller {
	c := sim.NewController(cfg.NumAxes, nil)
	c.Verbose = cfg.Verbose
	for _, ax := range c.Axes {
		ax.EnforceLimits = cfg.EnforceLimits
		ax.SetLimits(cfg.LowLimit, cfg.HighLimit)
	}
	return c
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	c := newController(cfg)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("simulating %d axes at %s\n", cfg.NumAxes, ln.Addr())
	log.Fatal(c.Serve(ln))
}
