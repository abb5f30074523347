// Package idle compresses inactivity gaps in a session timeline.
//
// Every gap between consecutive activity timestamps longer than the threshold
// becomes a Period. A period keeps its first and last few seconds on the
// normal timeline and collapses its middle to a fixed-width marker, so a
// viewer sees the last keystroke before a break and the first one after it
// while the break itself takes a constant amount of display time.
//
// All times are unix milliseconds.
package idle

import (
	"math"
	"sort"
	"time"
)

type Config struct {
	// Gaps strictly longer than Threshold are idle periods.
	Threshold time.Duration
	// DisplayDuration is the compressed length of a whole idle period.
	DisplayDuration time.Duration
	// MarkerDuration is the compressed length of the collapsed middle.
	MarkerDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:       2 * time.Minute,
		DisplayDuration: time.Minute,
		MarkerDuration:  10 * time.Second,
	}
}

type Period struct {
	Start    int64 `json:"start"`
	End      int64 `json:"end"`
	Duration int64 `json:"duration"`
	// Minutes is the label shown on the marker.
	Minutes     int64 `json:"minutes"`
	MiddleStart int64 `json:"middleStart"`
	MiddleEnd   int64 `json:"middleEnd"`
	Marker      int64 `json:"marker"`
	// Collapsed is the real time removed from the timeline.
	Collapsed int64 `json:"collapsed"`
}

func (p Period) middle() int64 { return p.MiddleEnd - p.MiddleStart }

// Mapper converts between real and compressed time. It is immutable.
type Mapper struct {
	periods []Period
}

func NewMapper(cfg Config, timestamps []int64) *Mapper {
	ts := make([]int64, len(timestamps))
	copy(ts, timestamps)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	threshold := cfg.Threshold.Milliseconds()
	display := cfg.DisplayDuration.Milliseconds()
	marker := cfg.MarkerDuration.Milliseconds()
	if marker > display {
		marker = display
	}
	edge := (display - marker) / 2
	if edge < 0 {
		edge = 0
	}

	m := &Mapper{}
	for i := 1; i < len(ts); i++ {
		gap := ts[i] - ts[i-1]
		if gap <= threshold {
			continue
		}
		e := edge
		if 2*e > gap {
			e = gap / 2
		}
		mid := gap - 2*e
		mk := marker
		if mk > mid {
			mk = mid
		}
		m.periods = append(m.periods, Period{
			Start:       ts[i-1],
			End:         ts[i],
			Duration:    gap,
			Minutes:     gap / 60000,
			MiddleStart: ts[i-1] + e,
			MiddleEnd:   ts[i] - e,
			Marker:      mk,
			Collapsed:   mid - mk,
		})
	}
	return m
}

func (m *Mapper) Periods() []Period {
	out := make([]Period, len(m.periods))
	copy(out, m.periods)
	return out
}

// RealToCompressed maps a real timestamp onto the compressed timeline.
func (m *Mapper) RealToCompressed(t int64) int64 {
	var shift int64
	for _, p := range m.periods {
		if t <= p.MiddleStart {
			break
		}
		if t < p.MiddleEnd {
			offset := (t - p.MiddleStart) * p.Marker / p.middle()
			return p.MiddleStart - shift + offset
		}
		shift += p.Collapsed
	}
	return t - shift
}

// CompressedToReal is the inverse of RealToCompressed. Points inside a
// marker map proportionally into the collapsed middle.
func (m *Mapper) CompressedToReal(c int64) int64 {
	var shift int64
	for _, p := range m.periods {
		start := p.MiddleStart - shift
		if c <= start {
			break
		}
		if c < start+p.Marker {
			return p.MiddleStart + (c-start)*p.middle()/p.Marker
		}
		shift += p.Collapsed
	}
	return c + shift
}

// InMiddle returns the period whose collapsed middle strictly contains t.
func (m *Mapper) InMiddle(t int64) (Period, bool) {
	i := sort.Search(len(m.periods), func(i int) bool { return m.periods[i].MiddleEnd > t })
	if i < len(m.periods) && m.periods[i].MiddleStart < t {
		return m.periods[i], true
	}
	return Period{}, false
}

// Advance moves a playhead at t forward by delta scaled by speed. Landing
// inside a collapsed middle jumps straight to its end; jumped reports that.
func (m *Mapper) Advance(t int64, delta time.Duration, speed float64) (next int64, jumped bool) {
	step := int64(math.Round(float64(delta) / float64(time.Millisecond) * speed))
	next = t + step
	if p, ok := m.InMiddle(next); ok {
		return p.MiddleEnd, true
	}
	return next, false
}

func (m *Mapper) CompressedDuration(start, end int64) int64 {
	d := m.RealToCompressed(end) - m.RealToCompressed(start)
	if d < 0 {
		return 0
	}
	return d
}

// RealAtFraction maps a position on a fixed-width bar, 0 to 1, to real time.
func (m *Mapper) RealAtFraction(start, end int64, f float64) int64 {
	if f <= 0 {
		return start
	}
	if f >= 1 {
		return end
	}
	c0 := m.RealToCompressed(start)
	c := c0 + int64(math.Round(f*float64(m.CompressedDuration(start, end))))
	return m.CompressedToReal(c)
}

// Fraction is the position of t on the compressed bar between start and end.
func (m *Mapper) Fraction(start, end, t int64) float64 {
	total := m.CompressedDuration(start, end)
	if total == 0 {
		return 0
	}
	f := float64(m.RealToCompressed(t)-m.RealToCompressed(start)) / float64(total)
	return math.Max(0, math.Min(1, f))
}
