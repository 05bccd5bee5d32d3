package updown

import (
	"time"

	"poly-updown/internal/clob"
	"poly-updown/internal/gamma"
)

// Entry window: only the last 4 minutes of a round are tradable, and the
// final 30 seconds are off limits (settlement is too close to get filled
// at a sane price).
const (
	maxEntryWindow    = 4 * time.Minute
	minEntryWindow    = 30 * time.Second
	extremePriceCap   = 0.98
	baseThreshold     = 0.90
	lateThreshold     = 0.85 // under 180s
	veryLateThreshold = 0.75 // under 100s
)

// Outcome is the side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Entry is a decision to buy one side of a market.
type Entry struct {
	Outcome     Outcome
	TokenID     string
	Threshold   float64
	SecondsLeft float64
}

// Decide evaluates one market against its live quotes and returns the side
// to enter, if any. It is a pure function of its arguments: same market,
// quotes, and clock always give the same answer.
//
// The threshold cascades as expiry approaches: 0.90 base, 0.85 under 180s,
// 0.75 under 100s; the checks run in that order so the tightest matching
// band wins. A BUY quote above 0.98 on either side vetoes entry outright.
func Decide(m gamma.Market, quotes map[string]clob.Quote, now time.Time) (Entry, bool) {
	end := m.End()
	if end.IsZero() {
		return Entry{}, false
	}

	left := end.Sub(now)
	if left > maxEntryWindow || left < minEntryWindow {
		return Entry{}, false
	}
	secondsLeft := left.Seconds()

	yesToken, noToken, err := m.TokenPair()
	if err != nil {
		return Entry{}, false
	}

	threshold := baseThreshold
	if secondsLeft < 180 {
		threshold = lateThreshold
	}
	if secondsLeft < 100 {
		threshold = veryLateThreshold
	}

	yesBuy := quotes[yesToken].Buy
	noBuy := quotes[noToken].Buy

	if yesBuy > extremePriceCap || noBuy > extremePriceCap {
		return Entry{}, false
	}

	switch {
	case yesBuy >= threshold:
		return Entry{Outcome: OutcomeYes, TokenID: yesToken, Threshold: threshold, SecondsLeft: secondsLeft}, true
	case noBuy >= threshold:
		return Entry{Outcome: OutcomeNo, TokenID: noToken, Threshold: threshold, SecondsLeft: secondsLeft}, true
	default:
		return Entry{}, false
	}
}
