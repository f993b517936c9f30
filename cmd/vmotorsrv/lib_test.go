package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/vmotor/comm"
	"github.jpl.nasa.gov/bdube/vmotor/motion"
	"github.jpl.nasa.gov/bdube/vmotor/util"
	"github.jpl.nasa.gov/bdube/vmotor/vmotor"
)

func mockConfig() Config {
	return Config{
		Addr:     ":0",
		Mock:     true,
		MockAxes: 2,
		Links:    []comm.LinkConfig{{Name: "l0", Timeout: time.Second}},
		Controllers: []ControllerSetup{{
			Port:         "VM0",
			Link:         "l0",
			NumAxes:      2,
			MovingPollMs: 10,
			IdlePollMs:   50,
			Endpoint:     "vm0",
			Velocity:     2000,
			Acceleration: 20000,
			Limits:       map[string]util.Limiter{"1": {Min: -10, Max: 10}}}}}
}

func buildMock(t *testing.T, c Config) (*System, http.Handler) {
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sys.Close)
	mux, err := BuildMux(c, sys)
	if err != nil {
		t.Fatal(err)
	}
	return sys, mux
}

func serve(h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, url, strings.NewReader(body)))
	return w
}

func TestProfileDefaults(t *testing.T) {
	p := ControllerSetup{Velocity: 10}.Profile()
	if p.Velocity != 10 || p.Acceleration != 400 || p.BaseVelocity != 0 {
		t.Errorf("expected velocity 10 with default acceleration, got %+v", p)
	}
}

func TestEndpoints(t *testing.T) {
	_, mux := buildMock(t, mockConfig())
	w := serve(mux, http.MethodGet, "/endpoints", "")
	graph := map[string][]string{}
	if err := json.NewDecoder(w.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	routes, ok := graph["/vm0"]
	if !ok {
		t.Fatalf("expected /vm0 in %v", graph)
	}
	want := []string{"POST /axis/{axis}/pos", "GET /lock", "POST /raw", "GET /report", "GET /axis/{axis}/limits"}
	for _, r := range want {
		found := false
		for _, have := range routes {
			if have == r {
				found = true
			}
		}
		if !found {
			t.Errorf("route %s missing from %v", r, routes)
		}
	}
}

func TestMoveOverHTTPWithMock(t *testing.T) {
	_, mux := buildMock(t, mockConfig())
	w := serve(mux, http.MethodPost, "/vm0/axis/0/pos", `{"f64": 50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = serve(mux, http.MethodGet, "/vm0/axis/0/pos", "")
		if w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"f64":50`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("axis never reached 50, last %d %s", w.Code, w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = serve(mux, http.MethodPost, "/vm0/raw", `{"str": "1 VEL?"}`)
	if !strings.Contains(w.Body.String(), "2000.000") {
		t.Errorf("expected the velocity used for the move, got %s", w.Body.String())
	}

	w = serve(mux, http.MethodGet, "/report?level=2", "")
	body := w.Body.String()
	if !strings.Contains(body, "virtual motor driver VM0") || !strings.Contains(body, "position=50") {
		t.Errorf("unexpected report %s", body)
	}
}

func TestLimitsAndLockWithMock(t *testing.T) {
	_, mux := buildMock(t, mockConfig())
	w := serve(mux, http.MethodPost, "/vm0/axis/1/pos", `{"f64": 50}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected a move outside the limits to be rejected, got %d", w.Code)
	}

	serve(mux, http.MethodPost, "/vm0/lock", `{"bool": true}`)
	w = serve(mux, http.MethodPost, "/vm0/axis/0/stop", "")
	if w.Code != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", w.Code)
	}
	w = serve(mux, http.MethodGet, "/vm0/lock", "")
	if !strings.Contains(w.Body.String(), "true") {
		t.Errorf("expected the lock to read back true, got %s", w.Body.String())
	}
	serve(mux, http.MethodPost, "/vm0/lock", `{"bool": false}`)
	w = serve(mux, http.MethodPost, "/vm0/axis/0/stop", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 once unlocked, got %d", w.Code)
	}
}

func TestDuplicateEndpoint(t *testing.T) {
	c := mockConfig()
	second := c.Controllers[0]
	second.Port = "VM1"
	second.Endpoint = "/vm0/"
	c.Controllers = append(c.Controllers, second)
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()
	if _, err := BuildMux(c, sys); err == nil {
		t.Error("expected two controllers on /vm0 to be an error")
	}
}

func TestBuildRejectsBadController(t *testing.T) {
	c := mockConfig()
	c.Controllers[0].NumAxes = 0
	if _, err := Build(context.Background(), c); err == nil {
		t.Error("expected a controller with no axes to be an error")
	}
}

func TestConsole(t *testing.T) {
	c := mockConfig()
	c.Controllers = nil
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()
	s := newConsole(sys)
	s.WaitTimeout = 5 * time.Second

	if err := s.CreateController([]string{"VM0", "l0", "2"}); err == nil {
		t.Error("expected too few arguments to be an error")
	}
	if err := s.CreateController([]string{"VM0", "l0", "two", "10", "50"}); err == nil {
		t.Error("expected a bad axis count to be an error")
	}
	if err := s.CreateController([]string{"VM0", "l0", "2", "10", "50"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAxis([]string{"VM0", "0"}); err == nil {
		t.Error("expected creating an existing axis to be an error")
	}
	if err := s.CreateAxis([]string{"nope", "0"}); err == nil {
		t.Error("expected an unknown port to be an error")
	}
	if s.Ports() != "VM0" || s.Links() != "l0" {
		t.Errorf("unexpected ports %q or links %q", s.Ports(), s.Links())
	}

	if err := s.Move([]string{"VM0", "1", "25"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait([]string{"VM0", "1"}); err != nil {
		t.Fatal(err)
	}
	st, err := s.Status([]string{"VM0", "1"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(st, "position=25") || !strings.Contains(st, "done=1") {
		t.Errorf("unexpected status %s", st)
	}

	if err := s.MoveRel([]string{"VM0", "1", "x"}); err == nil {
		t.Error("expected a bad offset to be an error")
	}
	if err := s.SetPos([]string{"VM0", "1", "0"}); err != nil {
		t.Error(err)
	}
	if err := s.Stop([]string{"VM0", "5"}); err == nil {
		t.Error("expected an axis out of range to be an error")
	}
	rpt, err := s.Report(nil)
	if err != nil || !strings.Contains(rpt, "virtual motor driver VM0") {
		t.Errorf("unexpected report %q, %v", rpt, err)
	}
	if _, err := s.Report([]string{"high"}); err == nil {
		t.Error("expected a bad level to be an error")
	}
}

func TestDeferredAxesFromConfig(t *testing.T) {
	c := mockConfig()
	c.Controllers[0].DeferAxes = true
	c.Controllers[0].Endpoint = ""
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()
	ctl, ok := sys.Registry.Find("VM0")
	if !ok {
		t.Fatal("VM0 was not created")
	}
	if n := len(ctl.Axes()); n != 0 {
		t.Errorf("expected no axes until they are created, got %d", n)
	}
	s := newConsole(sys)
	if err := s.CreateAxis([]string{"VM0", "1"}); err != nil {
		t.Fatal(err)
	}
	if n := len(ctl.Axes()); n != 1 {
		t.Errorf("expected one axis, got %d", n)
	}
}

func TestConsoleDeferredAxes(t *testing.T) {
	c := mockConfig()
	c.Controllers = nil
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()
	s := newConsole(sys)

	if err := s.CreateController([]string{"VM1", "l0", "2", "10", "50", "later"}); err == nil {
		t.Error("expected an unknown sixth argument to be an error")
	}
	if err := s.CreateController([]string{"VM1", "l0", "2", "10", "50", "defer"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Move([]string{"VM1", "1", "5"}); err == nil {
		t.Error("expected a move on an axis not yet created to be an error")
	}
	if err := s.CreateAxis([]string{"VM1", "1"}); err != nil {
		t.Fatalf("creating a deferred axis: %v", err)
	}
	if err := s.CreateAxis([]string{"VM1", "1"}); err == nil {
		t.Error("expected creating the axis twice to be an error")
	}
	if err := s.Move([]string{"VM1", "1", "5"}); err != nil {
		t.Error(err)
	}
	if err := s.Wait([]string{"VM1", "1"}); err != nil {
		t.Error(err)
	}
	if _, err := s.Status([]string{"VM1", "0"}); err == nil {
		t.Error("expected axis 0 to still be missing")
	}
}

type countingScheduler struct {
	*motion.Poller

	mu    sync.Mutex
	wakes int
}

func (c *countingScheduler) Wake(port string) {
	c.mu.Lock()
	c.wakes++
	c.mu.Unlock()
	c.Poller.Wake(port)
}

func (c *countingScheduler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakes
}

func TestConsoleWakesOnlyForMotion(t *testing.T) {
	c := mockConfig()
	c.Controllers = nil
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()
	sched := &countingScheduler{Poller: sys.Poller}
	sys.Registry = vmotor.NewRegistry(func(link string) (vmotor.Transport, error) {
		rd, err := sys.Links.Connect(link)
		if err != nil {
			return nil, err
		}
		return rd, nil
	}, sched)
	s := newConsole(sys)
	if err := s.CreateController([]string{"VM0", "l0", "2", "10", "1000"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Move([]string{"VM0", "0", "20"}); err != nil {
		t.Fatal(err)
	}
	if n := sched.count(); n != 1 {
		t.Errorf("expected one wake for the move, got %d", n)
	}
	if err := s.Wait([]string{"VM0", "0"}); err != nil {
		t.Fatal(err)
	}
	s.Status([]string{"VM0", "0"})
	s.SetPos([]string{"VM0", "0", "0"})
	if n := sched.count(); n != 1 {
		t.Errorf("reads should not wake the poller, got %d wakes", n)
	}
	s.Stop([]string{"VM0", "0"})
	if n := sched.count(); n != 2 {
		t.Errorf("expected a wake for the stop, got %d", n)
	}
}

func TestConsoleStatusReportsLinkFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := Config{Links: []comm.LinkConfig{{Name: "dead", Addr: addr, Timeout: 100 * time.Millisecond}}}
	sys, err := Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()
	s := newConsole(sys)
	if err := s.CreateController([]string{"VM0", "dead", "1", "10", "1000"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Status([]string{"VM0", "0"}); err == nil {
		t.Error("expected the failed poll to be returned")
	}
}
