package blow

import "time"

// Gate decides whether a level reading is a new blow: it must exceed the
// threshold and no blow may have fired within the debounce window.
type Gate struct {
	Threshold float64
	Debounce  time.Duration

	last  time.Time
	fired bool
}

// Offer feeds one reading taken at now and reports whether it triggers
func (g *Gate) Offer(level float64, now time.Time) bool {
	if level <= g.Threshold {
		return false
	}
	if g.fired && now.Sub(g.last) < g.Debounce {
		return false
	}
	g.last = now
	g.fired = true
	return true
}
