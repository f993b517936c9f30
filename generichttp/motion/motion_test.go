package motion

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.jpl.nasa.gov/bdube/vmotor/generichttp"
	"github.jpl.nasa.gov/bdube/vmotor/util"
)

type fakeStage struct {
	pos    map[string]float64
	vel    map[string]float64
	jogs   map[string]float64
	stops  []string
	defErr error
}

func newFakeStage() *fakeStage {
	return &fakeStage{
		pos:  map[string]float64{"0": 10},
		vel:  map[string]float64{},
		jogs: map[string]float64{}}
}

func (f *fakeStage) GetPos(axis string) (float64, error) {
	p, ok := f.pos[axis]
	if !ok {
		return 0, errors.New("no such axis")
	}
	return p, nil
}

func (f *fakeStage) MoveAbs(axis string, pos float64) error {
	f.pos[axis] = pos
	return nil
}

func (f *fakeStage) MoveRel(axis string, pos float64) error {
	f.pos[axis] += pos
	return nil
}

func (f *fakeStage) DefinePos(axis string, pos float64) error {
	if f.defErr != nil {
		return f.defErr
	}
	f.pos[axis] = pos
	return nil
}

func (f *fakeStage) Stop(axis string) error {
	f.stops = append(f.stops, axis)
	return nil
}

func (f *fakeStage) SetVelocity(axis string, v float64) error {
	f.vel[axis] = v
	return nil
}

func (f *fakeStage) GetVelocity(axis string) (float64, error) {
	return f.vel[axis], nil
}

func (f *fakeStage) Jog(axis string, v float64) error {
	f.jogs[axis] = v
	return nil
}

func (f *fakeStage) GetStatus(axis string) (map[string]float64, error) {
	return map[string]float64{"done": 1, "position": f.pos[axis]}, nil
}

// moveOnly satisfies nothing but Mover
type moveOnly struct {
	f *fakeStage
}

func (m moveOnly) GetPos(axis string) (float64, error) {
	return m.f.GetPos(axis)
}

func (m moveOnly) MoveAbs(axis string, pos float64) error {
	return m.f.MoveAbs(axis, pos)
}

func (m moveOnly) MoveRel(axis string, pos float64) error {
	return m.f.MoveRel(axis, pos)
}

func newRouter(h generichttp.HTTPer, mw ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mw...)
	h.RT().Bind(r)
	return r
}

func do(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutesFollowImplementedInterfaces(t *testing.T) {
	full := NewHTTPMotionController(newFakeStage()).RT().Endpoints()
	expected := []string{
		"POST /axis/{axis}/define-pos",
		"POST /axis/{axis}/jog",
		"GET /axis/{axis}/pos",
		"POST /axis/{axis}/pos",
		"GET /axis/{axis}/status",
		"POST /axis/{axis}/stop",
		"GET /axis/{axis}/velocity",
		"POST /axis/{axis}/velocity",
	}
	if strings.Join(full, "\n") != strings.Join(expected, "\n") {
		t.Errorf("expected routes\n%s\ngot\n%s", strings.Join(expected, "\n"), strings.Join(full, "\n"))
	}

	bare := NewHTTPMotionController(moveOnly{newFakeStage()}).RT().Endpoints()
	if len(bare) != 2 {
		t.Errorf("expected only the pos routes for a plain Mover, got %v", bare)
	}
}

func TestMoveAbsoluteAndRelative(t *testing.T) {
	f := newFakeStage()
	r := newRouter(NewHTTPMotionController(f))
	if w := do(t, r, http.MethodPost, "/axis/0/pos", `{"f64": 5}`); w.Code != http.StatusOK {
		t.Fatalf("absolute move: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/axis/0/pos?relative=true", `{"f64": 2.5}`); w.Code != http.StatusOK {
		t.Fatalf("relative move: %d %s", w.Code, w.Body.String())
	}
	w := do(t, r, http.MethodGet, "/axis/0/pos", "")
	out := generichttp.FloatT{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.F64 != 7.5 {
		t.Errorf("expected 7.5, got %v", out.F64)
	}
}

func TestBadRequests(t *testing.T) {
	r := newRouter(NewHTTPMotionController(newFakeStage()))
	if w := do(t, r, http.MethodPost, "/axis/0/pos?relative=maybe", `{"f64": 1}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad relative flag: expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/axis/0/pos", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/axis/9/pos", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("unknown axis: expected 500, got %d", w.Code)
	}
}

func TestStopJogVelocityDefine(t *testing.T) {
	f := newFakeStage()
	r := newRouter(NewHTTPMotionController(f))
	do(t, r, http.MethodPost, "/axis/1/stop", "")
	do(t, r, http.MethodPost, "/axis/1/jog", `{"f64": -3}`)
	do(t, r, http.MethodPost, "/axis/1/velocity", `{"f64": 200}`)
	do(t, r, http.MethodPost, "/axis/1/define-pos", `{"f64": 42}`)
	if len(f.stops) != 1 || f.stops[0] != "1" {
		t.Errorf("expected one stop on axis 1, got %v", f.stops)
	}
	if f.jogs["1"] != -3 || f.vel["1"] != 200 || f.pos["1"] != 42 {
		t.Errorf("unexpected state jog=%v vel=%v pos=%v", f.jogs, f.vel, f.pos)
	}
	w := do(t, r, http.MethodGet, "/axis/1/velocity", "")
	if !strings.Contains(w.Body.String(), `"f64":200`) {
		t.Errorf("expected velocity 200, got %s", w.Body.String())
	}

	f.defErr = errors.New("moving")
	if w := do(t, r, http.MethodPost, "/axis/1/define-pos", `{"f64": 1}`); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when the controller refuses, got %d", w.Code)
	}
}

func TestStatusIsJSONObject(t *testing.T) {
	r := newRouter(NewHTTPMotionController(newFakeStage()))
	w := do(t, r, http.MethodGet, "/axis/0/status", "")
	st := map[string]float64{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st["done"] != 1 || st["position"] != 10 {
		t.Errorf("unexpected status %v", st)
	}
}

func TestLimitMiddleware(t *testing.T) {
	f := newFakeStage()
	h := NewHTTPMotionController(f)
	lim := LimitMiddleware{Limits: map[string]util.Limiter{"0": {Min: -20, Max: 20}}, Mov: f}
	lim.Inject(h)
	r := newRouter(h, lim.Check)

	if w := do(t, r, http.MethodPost, "/axis/0/pos", `{"f64": 25}`); w.Code != http.StatusBadRequest {
		t.Errorf("absolute move past the limit: expected 400, got %d", w.Code)
	}
	if f.pos["0"] != 10 {
		t.Error("a rejected move must not reach the controller")
	}
	// 10 + 15 is past the limit even though 15 is not
	if w := do(t, r, http.MethodPost, "/axis/0/pos?relative=true", `{"f64": 15}`); w.Code != http.StatusBadRequest {
		t.Errorf("relative move past the limit: expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/axis/0/pos?relative=true", `{"f64": 5}`); w.Code != http.StatusOK {
		t.Errorf("move within limits: expected 200, got %d", w.Code)
	}
	if f.pos["0"] != 15 {
		t.Errorf("expected the body to survive the middleware, position %v", f.pos["0"])
	}
	// no limit on axis 1, and define-pos is not a move
	if w := do(t, r, http.MethodPost, "/axis/1/pos", `{"f64": 1e6}`); w.Code != http.StatusOK {
		t.Errorf("unlimited axis: expected 200, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/axis/0/define-pos", `{"f64": 1e6}`); w.Code != http.StatusOK {
		t.Errorf("define-pos: expected 200, got %d", w.Code)
	}

	w := do(t, r, http.MethodGet, "/axis/0/limits", "")
	got := util.Limiter{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Min != -20 || got.Max != 20 {
		t.Errorf("unexpected limits %+v", got)
	}
	w = do(t, r, http.MethodGet, "/axis/1/limits", "")
	if strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("expected null for an axis without limits, got %s", w.Body.String())
	}
}

func TestAxisFromPath(t *testing.T) {
	cases := map[string]string{
		"/axis/0/pos":        "0",
		"/vm0/axis/12/pos":   "12",
		"/vm0/axis/x/pos":    "x",
		"/vm0/notaxis/1/pos": "",
		"/pos":               "",
	}
	for in, out := range cases {
		if got := axisFromPath(in); got != out {
			t.Errorf("axisFromPath(%q): expected %q got %q", in, out, got)
		}
	}
}
