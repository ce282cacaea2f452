package recovery

import (
	"math"
	"time"

	"github.com/d2herder/d2herder/pkg/bot"
)

// PositionSample is one point of the position/activity stream fed to the
// stuck detector. Marker carries an activity label for phases where
// coordinates are meaningless (menus, loading screens).
type PositionSample struct {
	X, Y   float64
	Marker string
	At     time.Time
}

func (s PositionSample) near(o PositionSample, epsilon float64) bool {
	if s.Marker != "" || o.Marker != "" {
		return s.Marker == o.Marker
	}
	return math.Abs(s.X-o.X) <= epsilon && math.Abs(s.Y-o.Y) <= epsilon
}

// StuckDetector flags "no progress" over a fixed sliding window: when the
// window is full and every sample is within epsilon of every other, the
// character is considered stuck. Single-writer, single-reader within one
// loop iteration; no locking.
type StuckDetector struct {
	window  []PositionSample
	size    int
	epsilon float64
}

// NewStuckDetector creates a detector with the given window size (sample
// count before a flag is possible) and similarity epsilon.
func NewStuckDetector(size int, epsilon float64) *StuckDetector {
	if size <= 0 {
		size = 5
	}
	if epsilon <= 0 {
		epsilon = 10
	}
	return &StuckDetector{
		window:  make([]PositionSample, 0, size),
		size:    size,
		epsilon: epsilon,
	}
}

// Observe appends a sample, evicting the oldest when full. When the
// window fills with mutually similar samples it returns a stuck
// ErrorEvent exactly once and clears the window so the same stale samples
// cannot re-flag; otherwise it returns nil.
func (d *StuckDetector) Observe(sample PositionSample, origin bot.State) *ErrorEvent {
	if sample.At.IsZero() {
		sample.At = time.Now()
	}
	if len(d.window) == d.size {
		d.window = d.window[1:]
	}
	d.window = append(d.window, sample)

	if !d.IsStuck() {
		return nil
	}

	d.Reset()
	ev := NewEvent(KindStuck, origin, "no positional progress over window")
	return &ev
}

// IsStuck reports whether the full window is mutually within epsilon.
// Always false while the window is still filling.
func (d *StuckDetector) IsStuck() bool {
	if len(d.window) < d.size {
		return false
	}
	for i := 0; i < len(d.window); i++ {
		for j := i + 1; j < len(d.window); j++ {
			if !d.window[i].near(d.window[j], d.epsilon) {
				return false
			}
		}
	}
	return true
}

// Reset clears the window, e.g. after a recovery action moved the
// character.
func (d *StuckDetector) Reset() {
	d.window = d.window[:0]
}

// Len returns the current window occupancy.
func (d *StuckDetector) Len() int { return len(d.window) }
