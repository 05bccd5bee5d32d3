package updown

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"poly-updown/internal/clob"
	"poly-updown/internal/gamma"
)

const (
	yesTok = "111"
	noTok  = "222"
)

func marketExpiring(t *testing.T, end time.Time) gamma.Market {
	t.Helper()
	raw := fmt.Sprintf(
		`{"id":"m1","slug":"btc-up-15m","endDate":%q,"clobTokenIds":"[\"%s\",\"%s\"]"}`,
		end.UTC().Format(time.RFC3339), yesTok, noTok,
	)
	var m gamma.Market
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("build market: %v", err)
	}
	return m
}

func quotesBuy(yes, no float64) map[string]clob.Quote {
	return map[string]clob.Quote{
		yesTok: {Buy: yes, Sell: yes - 0.01},
		noTok:  {Buy: no, Sell: no - 0.01},
	}
}

func TestDecide_MidBandYesEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketExpiring(t, now.Add(150*time.Second))

	entry, ok := Decide(m, quotesBuy(0.86, 0.10), now)
	if !ok {
		t.Fatalf("expected entry")
	}
	if entry.Outcome != OutcomeYes || entry.TokenID != yesTok {
		t.Fatalf("got %s/%s, want YES/%s", entry.Outcome, entry.TokenID, yesTok)
	}
	if entry.Threshold != 0.85 {
		t.Fatalf("threshold = %v, want 0.85", entry.Threshold)
	}
}

func TestDecide_VeryLateBandLowersThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketExpiring(t, now.Add(50*time.Second))

	entry, ok := Decide(m, quotesBuy(0.80, 0.05), now)
	if !ok {
		t.Fatalf("expected entry at threshold 0.75")
	}
	if entry.Outcome != OutcomeYes || entry.Threshold != 0.75 {
		t.Fatalf("got %s threshold=%v, want YES threshold=0.75", entry.Outcome, entry.Threshold)
	}
}

func TestDecide_ThresholdBands(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		secondsLeft int
		threshold   float64
	}{
		{235, 0.90},
		{181, 0.90},
		{179, 0.85},
		{101, 0.85},
		{99, 0.75},
		{31, 0.75},
	}
	for _, tc := range cases {
		m := marketExpiring(t, now.Add(time.Duration(tc.secondsLeft)*time.Second))
		// A YES quote exactly at the band threshold qualifies.
		entry, ok := Decide(m, quotesBuy(tc.threshold, 0.02), now)
		if !ok {
			t.Fatalf("secondsLeft=%d: expected entry at threshold %v", tc.secondsLeft, tc.threshold)
		}
		if entry.Threshold != tc.threshold {
			t.Fatalf("secondsLeft=%d: threshold = %v, want %v", tc.secondsLeft, entry.Threshold, tc.threshold)
		}
		// Just below the threshold: no entry on either side.
		if _, ok := Decide(m, quotesBuy(tc.threshold-0.001, 0.02), now); ok {
			t.Fatalf("secondsLeft=%d: entry below threshold %v", tc.secondsLeft, tc.threshold)
		}
	}
}

func TestDecide_OutsideWindowNeverEnters(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, secondsLeft := range []int{600, 241, 29, 15, -5} {
		m := marketExpiring(t, now.Add(time.Duration(secondsLeft)*time.Second))
		if _, ok := Decide(m, quotesBuy(0.95, 0.95), now); ok {
			t.Fatalf("secondsLeft=%d: expected no entry outside window", secondsLeft)
		}
	}
}

func TestDecide_ExtremePriceVeto(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketExpiring(t, now.Add(150*time.Second))

	if _, ok := Decide(m, quotesBuy(0.99, 0.01), now); ok {
		t.Fatalf("YES above 0.98 must veto entry")
	}
	if _, ok := Decide(m, quotesBuy(0.90, 0.983), now); ok {
		t.Fatalf("NO above 0.98 must veto entry even when YES qualifies")
	}
}

func TestDecide_NoSidePicksNoToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketExpiring(t, now.Add(150*time.Second))

	entry, ok := Decide(m, quotesBuy(0.10, 0.91), now)
	if !ok {
		t.Fatalf("expected NO entry")
	}
	if entry.Outcome != OutcomeNo || entry.TokenID != noTok {
		t.Fatalf("got %s/%s, want NO/%s", entry.Outcome, entry.TokenID, noTok)
	}
}

func TestDecide_MissingQuotesCoerceToZero(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketExpiring(t, now.Add(150*time.Second))

	if _, ok := Decide(m, map[string]clob.Quote{}, now); ok {
		t.Fatalf("empty quote map must not enter")
	}
}

func TestDecide_BadMarketNoEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var oneToken gamma.Market
	raw := fmt.Sprintf(
		`{"id":"m2","endDate":%q,"clobTokenIds":"[\"%s\"]"}`,
		now.Add(150*time.Second).Format(time.RFC3339), yesTok,
	)
	if err := json.Unmarshal([]byte(raw), &oneToken); err != nil {
		t.Fatalf("build market: %v", err)
	}
	if _, ok := Decide(oneToken, quotesBuy(0.95, 0.02), now); ok {
		t.Fatalf("single-token market must not enter")
	}

	var noDate gamma.Market
	if err := json.Unmarshal([]byte(`{"id":"m3","clobTokenIds":"[\"111\",\"222\"]"}`), &noDate); err != nil {
		t.Fatalf("build market: %v", err)
	}
	if _, ok := Decide(noDate, quotesBuy(0.95, 0.02), now); ok {
		t.Fatalf("market without endDate must not enter")
	}
}

func TestDecide_Deterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketExpiring(t, now.Add(150*time.Second))
	q := quotesBuy(0.86, 0.10)

	first, ok1 := Decide(m, q, now)
	second, ok2 := Decide(m, q, now)
	if ok1 != ok2 || first != second {
		t.Fatalf("decision not deterministic: %+v vs %+v", first, second)
	}
}
