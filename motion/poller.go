package motion

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ForcedFastPolls is the number of polls made at the moving period after a
// wake up, regardless of whether any axis reports moving.  A move command is
// often acknowledged before the device reports the axis as moving.
const ForcedFastPolls = 10

// Poller is a Scheduler that runs one goroutine per controller.  Each cycle
// takes the controller's lock and polls every axis; the next cycle is after
// the moving period if any axis is moving, otherwise after the idle period.
type Poller struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	wakes map[string]*waker
}

type waker struct {
	c       chan struct{}
	limiter *rate.Limiter
}

// NewPoller returns a Poller whose goroutines live until ctx is done or Stop
// is called
func NewPoller(ctx context.Context) *Poller {
	ctx, cancel := context.WithCancel(ctx)
	return &Poller{ctx: ctx, cancel: cancel, wakes: make(map[string]*waker)}
}

// Start begins polling c.  Starting the same port twice is a no-op.
func (p *Poller) Start(c Controller) {
	p.mu.Lock()
	defer p.mu.Unlock()
	port := c.Port()
	if _, ok := p.wakes[port]; ok {
		return
	}
	moving, _ := c.PollPeriods()
	w := &waker{
		c: make(chan struct{}, 1),
		// at most one wake per moving period, with a burst for a quick
		// sequence of commands to different axes
		limiter: rate.NewLimiter(rate.Every(moving), 4)}
	p.wakes[port] = w
	p.wg.Add(1)
	go p.run(c, w.c)
}

// Wake causes the controller registered as port to be polled promptly and
// then at the moving period for ForcedFastPolls cycles.  Wakes in excess of
// one per moving period are dropped.
func (p *Poller) Wake(port string) {
	p.mu.Lock()
	w, ok := p.wakes[port]
	p.mu.Unlock()
	if !ok || !w.limiter.Allow() {
		return
	}
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// Stop halts all polling and waits for the goroutines to exit
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

// PollOnce polls every axis of c once, holding its lock, and reports if any
// axis is moving.  Errors are not returned; drivers publish them as the
// Problem parameter.
func PollOnce(c Controller) bool {
	c.Lock()
	defer c.Unlock()
	anyMoving := false
	for _, ax := range c.Axes() {
		moving, _ := ax.Poll()
		if moving {
			anyMoving = true
		}
	}
	return anyMoving
}

func (p *Poller) run(c Controller, wake <-chan struct{}) {
	defer p.wg.Done()
	movingPeriod, idlePeriod := c.PollPeriods()
	forced := 0
	for {
		anyMoving := PollOnce(c)
		period := idlePeriod
		if anyMoving || forced > 0 {
			period = movingPeriod
		}
		if forced > 0 {
			forced--
		}
		timer := time.NewTimer(period)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-wake:
			timer.Stop()
			forced = ForcedFastPolls
		}
	}
}
