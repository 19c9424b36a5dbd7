package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so background jobs and expiry rules can be tested
// without waiting in real time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real reads the system clock.
type Real struct{}

// Now returns the current UTC time
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// NewTicker wraps time.NewTicker
func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Fixed always returns the same instant until it is advanced. Its tickers
// only fire when Tick is called.
type Fixed struct {
	T time.Time

	mu      sync.Mutex
	tickers []*manualTicker
}

// Now returns the fixed instant
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.T
}

// Advance moves the fixed clock forward
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.T = f.T.Add(d)
}

// NewTicker returns a ticker driven by Tick
func (f *Fixed) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time), stop: make(chan struct{})}
	f.tickers = append(f.tickers, t)
	return t
}

// Tickers reports how many tickers have been created and not stopped
func (f *Fixed) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

// Tick delivers one tick to every live ticker and blocks until each has
// been received.
func (f *Fixed) Tick() {
	f.mu.Lock()
	now := f.T
	tickers := append([]*manualTicker(nil), f.tickers...)
	f.mu.Unlock()

	for _, t := range tickers {
		select {
		case t.c <- now:
		case <-t.stop:
		}
	}
}

type manualTicker struct {
	c        chan time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *manualTicker) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
