// Package candles counts blown-out candles and fires the celebration the
// first time the last one goes out.
package candles

import (
	"math/rand/v2"
	"sync"
)

const (
	DefaultTotal   = 17
	DefaultMaxStep = 3
)

// Counter tracks how many of Total candles are out. Safe for concurrent use.
type Counter struct {
	total   int
	maxStep int

	mu         sync.Mutex
	rng        *rand.Rand
	blown      int
	celebrated bool
}

// Option configures a Counter
type Option func(*Counter)

// WithRand sets the source of blow increments, for tests
func WithRand(r *rand.Rand) Option {
	return func(c *Counter) { c.rng = r }
}

// WithMaxStep sets the largest number of candles one blow can put out
func WithMaxStep(n int) Option {
	return func(c *Counter) {
		if n > 0 {
			c.maxStep = n
		}
	}
}

// New creates a counter for total candles (DefaultTotal when total < 1)
func New(total int, opts ...Option) *Counter {
	if total < 1 {
		total = DefaultTotal
	}
	c := &Counter{
		total:   total,
		maxStep: DefaultMaxStep,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Blow puts out between 1 and MaxStep candles. celebrate is true only for
// the call that put out the last candle.
func (c *Counter) Blow() (blown int, celebrate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(1 + c.rng.IntN(c.maxStep))
}

// Add puts out n candles, clamped to Total
func (c *Counter) Add(n int) (blown int, celebrate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(n)
}

func (c *Counter) addLocked(n int) (int, bool) {
	if n < 0 {
		n = 0
	}
	c.blown = min(c.blown+n, c.total)
	if c.blown == c.total && !c.celebrated {
		c.celebrated = true
		return c.blown, true
	}
	return c.blown, false
}

// Relight puts every candle back and re-arms the celebration
func (c *Counter) Relight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blown = 0
	c.celebrated = false
}

// Blown returns how many candles are out
func (c *Counter) Blown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blown
}

// Total returns the number of candles on the cake
func (c *Counter) Total() int {
	return c.total
}

// Celebrated reports whether the celebration has fired since the last Relight
func (c *Counter) Celebrated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.celebrated
}
