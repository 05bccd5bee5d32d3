package gamma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSeries_ParsesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/series" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("slug"); got != "btc-up-or-down-15m" {
			http.Error(w, "bad slug", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
  {
    "id": "10001",
    "slug": "btc-up-or-down-15m",
    "title": "BTC Up or Down 15m",
    "events": [
      {"id": "1", "slug": "btc-up-or-down-15m-1765791900", "endDate": "2025-12-15T10:00:00Z"},
      {"id": "2", "slug": "btc-up-or-down-15m-1765792800", "endDate": "2025-12-15T10:15:00Z"},
      {"id": "3", "slug": "btc-up-or-down-15m-bad", "endDate": "not-a-timestamp"}
    ]
  }
]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := c.Series(ctx, "btc-up-or-down-15m")
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if s.ID != "10001" || len(s.Events) != 3 {
		t.Fatalf("unexpected series: %+v", s)
	}

	want := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	if !s.Events[0].End().Equal(want) {
		t.Fatalf("endDate: got %v want %v", s.Events[0].End(), want)
	}
	// A malformed timestamp decodes to the zero time instead of failing the
	// whole series.
	if !s.Events[2].End().IsZero() {
		t.Fatalf("expected zero end for malformed endDate, got %v", s.Events[2].End())
	}
}

func TestMarketBySlug_ParsesStringifiedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
  {
    "id": "512345",
    "question": "Bitcoin Up or Down?",
    "slug": "btc-up-or-down-15m-1765791900",
    "endDate": "2025-12-15T10:15:00Z",
    "clobTokenIds": "[\"111\",\"222\"]",
    "outcomePrices": "[\"0.52\",\"0.48\"]",
    "volume": "12345.67",
    "liquidity": "890.12"
  }
]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m, err := c.MarketBySlug(ctx, "btc-up-or-down-15m-1765791900")
	if err != nil {
		t.Fatalf("MarketBySlug: %v", err)
	}

	yes, no, err := m.TokenPair()
	if err != nil {
		t.Fatalf("TokenPair: %v", err)
	}
	if yes != "111" || no != "222" {
		t.Fatalf("unexpected token pair: yes=%q no=%q", yes, no)
	}
	if len(m.OutcomePrices) != 2 || m.OutcomePrices[0] != 0.52 || m.OutcomePrices[1] != 0.48 {
		t.Fatalf("unexpected outcomePrices: %#v", m.OutcomePrices)
	}
	if m.Volume != 12345.67 {
		t.Fatalf("unexpected volume: %v", m.Volume)
	}
}

func TestMarketBySlug_ParsesPlainArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
  {
    "id": "9",
    "slug": "x",
    "endDate": "2025-12-15T10:15:00Z",
    "clobTokenIds": ["1", "2", "3"],
    "outcomePrices": ["0.9", "0.1"],
    "volume": "0",
    "liquidity": "0"
  }
]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	m, err := c.MarketBySlug(context.Background(), "x")
	if err != nil {
		t.Fatalf("MarketBySlug: %v", err)
	}

	// Extras beyond the first two token ids are ignored.
	yes, no, err := m.TokenPair()
	if err != nil {
		t.Fatalf("TokenPair: %v", err)
	}
	if yes != "1" || no != "2" {
		t.Fatalf("unexpected pair: %q %q", yes, no)
	}
}

func TestMarketBySlug_TolerantVolumeLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Bare number, null, and garbage must never fail the market decode.
		_, _ = w.Write([]byte(`[
  {
    "id": "9",
    "slug": "x",
    "endDate": "2025-12-15T10:15:00Z",
    "clobTokenIds": ["1", "2"],
    "outcomePrices": ["0.9", "0.1"],
    "volume": 12345.67,
    "liquidity": null
  }
]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	m, err := c.MarketBySlug(context.Background(), "x")
	if err != nil {
		t.Fatalf("MarketBySlug: %v", err)
	}
	if m.Volume != 12345.67 {
		t.Fatalf("unexpected volume: %v", m.Volume)
	}
	if m.Liquidity != 0 {
		t.Fatalf("null liquidity should decode to 0, got %v", m.Liquidity)
	}

	var garbage Market
	if err := json.Unmarshal([]byte(`{"id":"g","volume":"not-a-number"}`), &garbage); err != nil {
		t.Fatalf("garbage volume must not fail decode: %v", err)
	}
	if garbage.Volume != 0 {
		t.Fatalf("garbage volume should decode to 0, got %v", garbage.Volume)
	}
}

func TestTokenPair_RequiresTwoIDs(t *testing.T) {
	m := Market{ID: "m1", TokenIDs: stringList{"only-one"}}
	if _, _, err := m.TokenPair(); err == nil {
		t.Fatalf("expected error for single token id")
	}
}
