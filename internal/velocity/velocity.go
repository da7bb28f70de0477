// Package velocity provides sliding-window burst and rate calculation.
package velocity

import "time"

// Burst describes the densest fixed-width window over a set of event
// times.
type Burst struct {
	// Count is the number of events inside the window.
	Count int

	// Start and End index the first and last event of the window in
	// the input slice.
	Start int
	End   int
}

// MaxBurst finds the densest window of the given width over times,
// which must be sorted ascending unix seconds. Runs a two-pointer scan
// in O(n). Returns a zero Burst for empty input.
func MaxBurst(times []int64, window time.Duration) Burst {
	if len(times) == 0 {
		return Burst{}
	}

	w := int64(window.Seconds())
	best := Burst{Count: 1}

	lo := 0
	for hi := 0; hi < len(times); hi++ {
		for times[hi]-times[lo] > w {
			lo++
		}
		if count := hi - lo + 1; count > best.Count {
			best = Burst{Count: count, Start: lo, End: hi}
		}
	}
	return best
}

// BurstFraction returns the share of events that fall inside the
// densest window of the given width. Returns 0 for empty input.
func BurstFraction(times []int64, window time.Duration) float64 {
	if len(times) == 0 {
		return 0
	}
	return float64(MaxBurst(times, window).Count) / float64(len(times))
}

// PerHour returns the event rate over the activity span, in events per
// hour. The span is floored at one hour so a tight cluster of events
// does not produce an unbounded rate. Returns 0 for fewer than two
// events, since a single event has no span.
func PerHour(times []int64, count int) float64 {
	if count <= 1 || len(times) < 2 {
		return 0
	}

	spanHours := float64(times[len(times)-1]-times[0]) / 3600.0
	if spanHours < 1 {
		spanHours = 1
	}
	return float64(count) / spanHours
}
