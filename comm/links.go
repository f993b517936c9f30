package comm

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// LinkConfig describes a named link to a device
type LinkConfig struct {
	// Name is what controllers refer to the link by
	Name string `yaml:"Name" koanf:"Name"`

	// Addr is a host:port pair, or the name of a serial port if Serial is true
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// Baud is the serial baud rate, ignored for TCP links
	Baud int `yaml:"Baud" koanf:"Baud"`

	// Timeout bounds each exchange on the link
	Timeout time.Duration `yaml:"Timeout" koanf:"Timeout"`
}

// ErrLinkNotFound is generated when a link name is not known to a Links
type ErrLinkNotFound struct {
	Name string
}

func (e ErrLinkNotFound) Error() string {
	return fmt.Sprintf("link %s not found", e.Name)
}

// Links is a registry of named RemoteDevices.  It is concurrent safe.
type Links struct {
	mu    sync.Mutex
	links map[string]*RemoteDevice
}

// NewLinks returns an empty registry
func NewLinks() *Links {
	return &Links{links: make(map[string]*RemoteDevice)}
}

// Configure adds a link to the registry.  The device is not opened until it
// is first used.
func (l *Links) Configure(cfg LinkConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("link for %s has no name", cfg.Addr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.links[cfg.Name]; ok {
		return fmt.Errorf("link %s already configured", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = 9600
	}
	rd := NewRemoteDevice(cfg.Addr, cfg.Serial, nil, MakeSerConf(cfg.Addr, baud, timeout))
	rd.Timeout = timeout
	l.links[cfg.Name] = &rd
	return nil
}

// Connect returns the device bound to name
func (l *Links) Connect(name string) (*RemoteDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rd, ok := l.links[name]
	if !ok {
		return nil, ErrLinkNotFound{name}
	}
	return rd, nil
}

// Names returns the sorted names of all configured links
func (l *Links) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.links))
	for k := range l.links {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
