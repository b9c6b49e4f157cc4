package breathing

import (
	"sync"
	"time"
)

// Clock supplies the time the pacer measures frame deltas against.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Frames drives a per-frame callback, the way a display refresh would.
// Run starts delivering frames to fn and returns a stop function. Stop must
// not block, since it is called from inside fn when a session ends.
type Frames interface {
	Run(fn func(now time.Time)) (stop func())
}

// DefaultFrameRate is the tick rate of TickerFrames when none is given.
const DefaultFrameRate = 60

// TickerFrames delivers frames from a time.Ticker on its own goroutine.
type TickerFrames struct {
	Interval time.Duration
	Clock    Clock
}

// NewTickerFrames returns a frame driver ticking fps times per second.
func NewTickerFrames(fps int) *TickerFrames {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	return &TickerFrames{Interval: time.Second / time.Duration(fps), Clock: SystemClock{}}
}

// Run implements Frames.
func (f *TickerFrames) Run(fn func(now time.Time)) func() {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second / DefaultFrameRate
	}
	clock := f.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn(clock.Now())
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// ManualFrames is a Frames driver for tests: nothing happens until Step.
type ManualFrames struct {
	mu     sync.Mutex
	fn     func(now time.Time)
	nextID int
	id     int
	runs   int
}

// Run implements Frames. Only the most recent registration is live.
func (f *ManualFrames) Run(fn func(now time.Time)) func() {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.fn = fn
	f.id = id
	f.runs++
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		if f.id == id {
			f.fn = nil
		}
		f.mu.Unlock()
	}
}

// Step delivers one frame at now. It reports whether a callback was live.
func (f *ManualFrames) Step(now time.Time) bool {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(now)
	return true
}

// Running reports whether a callback is currently registered.
func (f *ManualFrames) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn != nil
}

// Runs counts how many times Run has been called.
func (f *ManualFrames) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}
