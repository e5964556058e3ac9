// Package timeline converts between a video's time domain and a fixed-width
// horizontal rendering domain, and hit-tests flag intervals. Every timeline
// widget (heatmap, scrubber, jump-to-moment buttons) shares these mappings.
//
// All functions are pure and cheap enough to call on every pointer-move or
// render event. The one condition callers must guard is duration <= 0: the
// mapping is undefined there and these functions return zero values so the
// caller can render an empty, disabled timeline instead of dividing by zero.
package timeline

import (
	"fmt"
	"math"

	"coherence/core"
)

// DefaultFlagDuration is assumed when a flag has no end timestamp.
const DefaultFlagDuration = 10.0

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TimeToPosition maps a timestamp to a horizontal pixel offset in [0, width].
// Out-of-range timestamps clamp; duration <= 0 yields 0.
func TimeToPosition(timestamp, duration, width float64) float64 {
	if duration <= 0 || width <= 0 {
		return 0
	}
	return clamp(timestamp, 0, duration) / duration * width
}

// PositionToTime is the inverse of TimeToPosition, clamped to [0, duration].
func PositionToTime(position, duration, width float64) float64 {
	if duration <= 0 || width <= 0 {
		return 0
	}
	return clamp(position, 0, width) / width * duration
}

// FlagDuration returns the length of a flag's interval, applying the 10s
// default when no end timestamp is present. Inverted intervals collapse to
// the default rather than going negative.
func FlagDuration(f *core.DissonanceFlag) float64 {
	if f.EndTimestamp == nil {
		return DefaultFlagDuration
	}
	d := *f.EndTimestamp - f.Timestamp
	if d <= 0 {
		return DefaultFlagDuration
	}
	return d
}

// FindFlagAt returns the flag whose half-open interval [start, start+dur)
// contains timestamp, or nil. When intervals overlap, the first match in
// list order wins; severity never re-orders candidates.
func FindFlagAt(timestamp float64, flags []core.DissonanceFlag) *core.DissonanceFlag {
	for i := range flags {
		f := &flags[i]
		if timestamp >= f.Timestamp && timestamp < f.Timestamp+FlagDuration(f) {
			return f
		}
	}
	return nil
}

// Region is a flag interval projected into pixel space for the heatmap
// renderer.
type Region struct {
	FlagID   string
	X        float64
	Width    float64
	Severity core.Severity
}

// FlagRegions projects flags to colored pixel regions. Regions are clamped
// to the drawable area and returned in flag list order so overlap resolution
// matches FindFlagAt. Returns nil when duration <= 0 (unrenderable timeline).
func FlagRegions(flags []core.DissonanceFlag, duration, width float64) []Region {
	if duration <= 0 || width <= 0 {
		return nil
	}
	regions := make([]Region, 0, len(flags))
	for i := range flags {
		f := &flags[i]
		x0 := TimeToPosition(f.Timestamp, duration, width)
		x1 := TimeToPosition(f.Timestamp+FlagDuration(f), duration, width)
		if x1 <= x0 {
			continue
		}
		regions = append(regions, Region{FlagID: f.ID, X: x0, Width: x1 - x0, Severity: f.Severity})
	}
	return regions
}

// FormatTimestamp renders seconds as "M:SS" with floor semantics:
// 65 -> "1:05", 12.9 -> "0:12". Negative input clamps to "0:00".
func FormatTimestamp(seconds float64) string {
	s := int(math.Floor(math.Max(seconds, 0)))
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
