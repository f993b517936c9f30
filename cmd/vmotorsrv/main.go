package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.jpl.nasa.gov/bdube/vmotor/comm"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "vmotorsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:        ":8000",
		MockAxes:    8,
		Links:       []comm.LinkConfig{},
		Controllers: []ControllerSetup{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `vmotorsrv drives virtual motor controllers over a serial or TCP link and
exposes an HTTP interface to their axes.

Usage:
	vmotorsrv <command>

Commands:
	run
	shell
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `vmotorsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Links are named connections to controllers.  Each has an Addr, which is a
host:port for TCP or a device such as /dev/ttyUSB0 or COM3 when Serial is true,
a Baud for serial links, and a Timeout such as 1s.

Controllers mirror VirtualMotorCreateController:
	Port          the name of the controller
	Link          the name of the link it is on
	NumAxes       the number of axes
	MovingPollMs  the poll period while an axis is moving
	IdlePollMs    the poll period while every axis is idle
A controller with an Endpoint is served over HTTP under that URL, with moves
made at its Velocity, BaseVelocity, and Acceleration.  Limits are software
limits by axis number.  No two controllers can have the same Endpoint.

URLs may look like any variation between "vm0" or "/vm0/", the leading
slash is added and the trailing slash is removed by the server.

With Mock: true every link is replaced by a simulated controller with MockAxes
axes, served in-process.

The shell command creates controllers and axes interactively from the same
links, with VirtualMotorCreateController and VirtualMotorCreateAxis.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("vmotorsrv version %v\n", Version)
}

func loadconf() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func run() {
	c := loadconf()
	sys, err := Build(context.Background(), c)
	if err != nil {
		log.Fatal(err)
	}
	defer sys.Close()
	mux, err := BuildMux(c, sys)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func shell() {
	c := loadconf()
	sys, err := Build(context.Background(), c)
	if err != nil {
		log.Fatal(err)
	}
	defer sys.Close()
	newShell(sys).Run()
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "run":
		run()
	case "shell":
		shell()
	default:
		log.Fatal("unknown command")
	}
}
