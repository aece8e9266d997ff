package epoch

import (
	"time"
)

// DefaultLength is one accounting week.
const DefaultLength = 7 * 24 * time.Hour

// Calculator maps wall-clock time to epoch indices given a fixed anchor.
// Epochs partition time: end(i) == start(i+1), no gaps, no overlaps.
// The zero epoch also absorbs any time before the anchor.
type Calculator struct {
	Start  time.Time
	Length time.Duration
}

func NewCalculator(start time.Time, length time.Duration) Calculator {
	if length <= 0 {
		length = DefaultLength
	}
	return Calculator{Start: start.UTC(), Length: length}
}

// Index returns the epoch index containing t.
func (c Calculator) Index(t time.Time) uint64 {
	if !t.After(c.Start) {
		return 0
	}
	return uint64(t.Sub(c.Start) / c.Length)
}

// Bounds returns the half-open interval [start, end) of epoch i.
func (c Calculator) Bounds(i uint64) (start, end time.Time) {
	start = c.Start.Add(time.Duration(i) * c.Length)
	return start, start.Add(c.Length)
}

// Ended reports whether epoch i has ended as of t.
func (c Calculator) Ended(i uint64, t time.Time) bool {
	_, end := c.Bounds(i)
	return !t.Before(end)
}
