// Package updown implements the recurring seed/active-trade cycle over
// time-boxed up-or-down markets: pick the right round of each series,
// decide entries from time remaining and live quotes, and place at most
// one seed order pair per market.
package updown

import (
	"sort"
	"time"

	"poly-updown/internal/gamma"
)

// SelectFutureEvent returns the index-th soonest event that still expires in
// the future (index 0 = the round closing next, 1 = the one after it). Events
// with a zero expiry are ignored. Returns false when fewer than index+1
// events qualify.
func SelectFutureEvent(events []gamma.Event, index int, now time.Time) (gamma.Event, bool) {
	if index < 0 {
		return gamma.Event{}, false
	}

	future := make([]gamma.Event, 0, len(events))
	for _, ev := range events {
		end := ev.End()
		if end.IsZero() || !end.After(now) {
			continue
		}
		future = append(future, ev)
	}
	if index >= len(future) {
		return gamma.Event{}, false
	}

	// Stable: equal expiries keep payload order.
	sort.SliceStable(future, func(i, j int) bool {
		return future[i].End().Before(future[j].End())
	})
	return future[index], true
}
