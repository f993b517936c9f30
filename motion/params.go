package motion

import "sync"

// Update is one flush of parameter changes for an axis
type Update struct {
	Axis   int
	Values map[Param]float64
}

// Params is an in-memory ParamStore.  It is concurrent safe.
//
// Integers are stored as float64; all of the integer parameters a driver
// publishes are small flags.
type Params struct {
	mu     sync.Mutex
	values map[int]map[Param]float64
	dirty  map[int]map[Param]struct{}
	subs   []func(Update)
}

// NewParams returns an empty parameter store
func NewParams() *Params {
	return &Params{
		values: make(map[int]map[Param]float64),
		dirty:  make(map[int]map[Param]struct{})}
}

func (p *Params) set(axis int, param Param, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vals, ok := p.values[axis]
	if !ok {
		vals = make(map[Param]float64)
		p.values[axis] = vals
	}
	vals[param] = v
	d, ok := p.dirty[axis]
	if !ok {
		d = make(map[Param]struct{})
		p.dirty[axis] = d
	}
	d[param] = struct{}{}
}

// SetInteger satisfies ParamStore
func (p *Params) SetInteger(axis int, param Param, v int) {
	p.set(axis, param, float64(v))
}

// SetDouble satisfies ParamStore
func (p *Params) SetDouble(axis int, param Param, v float64) {
	p.set(axis, param, v)
}

// CallParamCallbacks delivers the values set on axis since the last call, in
// one Update, to every subscriber.  Nothing is delivered if nothing was set.
func (p *Params) CallParamCallbacks(axis int) {
	p.mu.Lock()
	d := p.dirty[axis]
	if len(d) == 0 {
		p.mu.Unlock()
		return
	}
	u := Update{Axis: axis, Values: make(map[Param]float64, len(d))}
	for param := range d {
		u.Values[param] = p.values[axis][param]
	}
	delete(p.dirty, axis)
	subs := make([]func(Update), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, f := range subs {
		f(u)
	}
}

// Subscribe registers f to be called on every flush.  f must not call back
// into Params' setters.
func (p *Params) Subscribe(f func(Update)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, f)
}

// Double returns the flushed or pending value of a parameter
func (p *Params) Double(axis int, param Param) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[axis][param]
	return v, ok
}

// Integer is Double, truncated to an int
func (p *Params) Integer(axis int, param Param) (int, bool) {
	v, ok := p.Double(axis, param)
	return int(v), ok
}

// Snapshot returns a copy of every value on an axis
func (p *Params) Snapshot(axis int) map[Param]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Param]float64, len(p.values[axis]))
	for k, v := range p.values[axis] {
		out[k] = v
	}
	return out
}
