package transport

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidTempo   = errors.New("invalid tempo")
	ErrInvalidSteps   = errors.New("invalid steps length")
	ErrAlreadyRunning = errors.New("clock already running")
	ErrNotRunning     = errors.New("clock not running")
)

const (
	DefaultSubdivisions = 4 // sixteenth notes
	DefaultLookahead    = 100 * time.Millisecond
)

// Tick is one scheduled step. At is the nominal target time computed from
// the tempo, not the time the tick was delivered.
type Tick struct {
	Index      int64
	At         time.Time
	Generation uint64
}

// Handler receives ticks in index order. HandleTick must not call Stop or
// Reconfigure on the clock delivering the tick.
type Handler interface {
	HandleTick(Tick)
}

// Canceler is implemented by handlers that hold work scheduled for the
// future. Stop calls CancelAfter with the stop instant, once before waiting
// for the delivering goroutine and once after it has exited.
type Canceler interface {
	CancelAfter(t time.Time)
}

// Config for a Clock. Zero Subdivisions and Lookahead take the defaults.
type Config struct {
	BPM          float64
	Subdivisions int
	Steps        int
	Lookahead    time.Duration // enqueue horizon
	DispatchLead time.Duration // ticks are handed out this long before At

	Logger *zap.Logger
	Now    func() time.Time
}

// Clock generates ticks with lookahead scheduling. It has two states,
// stopped and running; Stop always rewinds to tick 0.
type Clock struct {
	ctl sync.Mutex // serializes Start/Stop/Reconfigure
	mu  sync.Mutex

	handler Handler
	log     *zap.Logger
	now     func() time.Time

	bpm          float64
	subdivisions int
	steps        int
	lookahead    time.Duration
	lead         time.Duration

	running    bool
	generation uint64
	stopCh     chan struct{}
	done       chan struct{}
	wake       chan struct{}

	// timeline of the running generation
	next        int64 // index of the next tick to enqueue
	anchorIndex int64
	anchorTime  time.Time
	period      float64 // nanoseconds per tick since the anchor
	retime      bool    // tempo changed, re-anchor at the next enqueue
	lastAt      time.Time
	queue       []Tick
	released    int64
}

// New creates a stopped clock delivering ticks to h
func New(cfg Config, h Handler) (*Clock, error) {
	if !validTempo(cfg.BPM) {
		return nil, fmt.Errorf("new clock bpm=%v: %w", cfg.BPM, ErrInvalidTempo)
	}
	if cfg.Steps <= 0 {
		return nil, fmt.Errorf("new clock steps=%d: %w", cfg.Steps, ErrInvalidSteps)
	}
	if cfg.Subdivisions <= 0 {
		cfg.Subdivisions = DefaultSubdivisions
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.DispatchLead < 0 {
		cfg.DispatchLead = 0
	}
	if cfg.DispatchLead > cfg.Lookahead {
		cfg.DispatchLead = cfg.Lookahead
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Clock{
		handler:      h,
		log:          cfg.Logger.Named("clock"),
		now:          cfg.Now,
		bpm:          cfg.BPM,
		subdivisions: cfg.Subdivisions,
		steps:        cfg.Steps,
		lookahead:    cfg.Lookahead,
		lead:         cfg.DispatchLead,
		wake:         make(chan struct{}, 1),
		released:     -1,
	}, nil
}

func validTempo(bpm float64) bool {
	return bpm > 0 && !math.IsNaN(bpm) && !math.IsInf(bpm, 0)
}

// Start begins tick generation with tick 0 at the current instant
func (c *Clock) Start() error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	return c.start(true)
}

func (c *Clock) start(spawn bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	now := c.now()
	c.running = true
	c.generation++
	c.next = 0
	c.anchorIndex = 0
	c.anchorTime = now
	c.period = c.tickPeriod()
	c.retime = false
	c.lastAt = now
	c.queue = c.queue[:0]
	c.released = -1

	c.log.Debug("start",
		zap.Uint64("generation", c.generation),
		zap.Float64("bpm", c.bpm),
		zap.Int("steps", c.steps))

	if !spawn {
		c.stopCh, c.done = nil, nil
		return nil
	}
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.generation, c.stopCh, c.done)
	return nil
}

// Stop halts tick generation and drops queued ticks. When Stop returns the
// handler will not be called again for this run.
func (c *Clock) Stop() error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	return c.stop()
}

func (c *Clock) stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	stoppedAt := c.now()
	c.running = false
	dropped := len(c.queue)
	c.queue = c.queue[:0]
	c.next = 0
	c.released = -1
	stopCh, done := c.stopCh, c.done
	c.stopCh, c.done = nil, nil
	gen := c.generation
	c.mu.Unlock()

	cn, cancels := c.handler.(Canceler)
	if stopCh != nil {
		// first pass while the last tick may still be in HandleTick
		if cancels {
			cn.CancelAfter(stoppedAt)
		}
		close(stopCh)
		<-done
	}

	if cancels {
		cn.CancelAfter(stoppedAt)
	}
	c.log.Debug("stop", zap.Uint64("generation", gen), zap.Int("dropped", dropped))
	return nil
}

// SetTempo changes the tempo for ticks not yet enqueued. Queued ticks keep
// their timestamps.
func (c *Clock) SetTempo(bpm float64) error {
	if !validTempo(bpm) {
		return fmt.Errorf("set tempo %v: %w", bpm, ErrInvalidTempo)
	}
	c.mu.Lock()
	c.bpm = bpm
	if c.running {
		c.retime = true
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.log.Debug("tempo", zap.Float64("bpm", bpm))
	return nil
}

// Reconfigure changes the loop length. A running clock is stopped and
// restarted so two generations never run at once.
func (c *Clock) Reconfigure(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("reconfigure steps=%d: %w", steps, ErrInvalidSteps)
	}
	c.ctl.Lock()
	defer c.ctl.Unlock()

	c.mu.Lock()
	c.steps = steps
	running := c.running
	c.mu.Unlock()
	if !running {
		return nil
	}
	if err := c.stop(); err != nil {
		return err
	}
	return c.start(true)
}

// Tempo returns the current bpm
func (c *Clock) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// Running reports whether ticks are being generated
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Steps returns the configured loop length
func (c *Clock) Steps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

// Generation identifies the current (or last) run
func (c *Clock) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Position returns the index of the last released tick, -1 if none
func (c *Clock) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// StepDuration is the length of one step at the current tempo
func (c *Clock) StepDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.tickPeriod())
}

func (c *Clock) tickPeriod() float64 {
	return float64(time.Minute) / c.bpm / float64(c.subdivisions)
}

func (c *Clock) pumpInterval() time.Duration {
	d := c.lookahead / 4
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// run is the scheduling goroutine of one generation
func (c *Clock) run(gen uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.wake:
		case <-timer.C:
		}

		ticks, wait := c.pump(gen, c.now())
		for _, t := range ticks {
			select {
			case <-stop:
				return
			default:
			}
			c.handler.HandleTick(t)
		}
		timer.Reset(wait)
	}
}

// pump enqueues every tick inside the lookahead window and releases the
// ones that are due. It returns the released ticks and how long to sleep.
func (c *Clock) pump(gen uint64, now time.Time) ([]Tick, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.generation != gen {
		return nil, c.pumpInterval()
	}

	horizon := now.Add(c.lookahead)
	for at := c.nextAt(); at.Before(horizon); at = c.nextAt() {
		if c.retime {
			c.anchorIndex = c.next
			c.anchorTime = at
			c.period = c.tickPeriod()
			c.retime = false
		}
		c.queue = append(c.queue, Tick{Index: c.next, At: at, Generation: gen})
		c.lastAt = at
		c.next++
	}

	due := now.Add(c.lead)
	n := 0
	for n < len(c.queue) && !c.queue[n].At.After(due) {
		n++
	}
	var out []Tick
	if n > 0 {
		out = append(out, c.queue[:n]...)
		c.queue = append(c.queue[:0], c.queue[n:]...)
		c.released = out[len(out)-1].Index
	}

	wait := c.pumpInterval()
	if len(c.queue) > 0 {
		if d := c.queue[0].At.Sub(now) - c.lead; d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return out, wait
}

// nextAt computes the nominal time of tick c.next. Times are derived from
// the anchor by multiplication so rounding never accumulates.
func (c *Clock) nextAt() time.Time {
	if c.retime && c.next > 0 {
		return c.lastAt.Add(time.Duration(math.Round(c.tickPeriod())))
	}
	offset := float64(c.next-c.anchorIndex) * c.period
	return c.anchorTime.Add(time.Duration(math.Round(offset)))
}
