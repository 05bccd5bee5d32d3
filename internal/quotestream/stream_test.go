package quotestream

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestSubscribeRequest_JSONShape(t *testing.T) {
	req := subscribeRequest{
		Action: "subscribe",
		Subscriptions: []subscription{{
			Topic:   "clob_market",
			Type:    "agg_orderbook",
			Filters: `["111","222"]`,
		}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, ok := m["action"].(string); !ok || got != "subscribe" {
		t.Fatalf("action mismatch: %#v", m["action"])
	}
	subs, ok := m["subscriptions"].([]any)
	if !ok || len(subs) != 1 {
		t.Fatalf("subscriptions mismatch: %#v", m["subscriptions"])
	}
	sub0 := subs[0].(map[string]any)
	// Filters must stay a JSON string, not a nested array.
	if got := sub0["filters"]; got != `["111","222"]` {
		t.Fatalf("filters mismatch: got=%#v", got)
	}
}

func TestSubscribeFrame_EmptySetOmitsFilters(t *testing.T) {
	s := New("", Options{})

	frame, err := s.subscribeFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sub0 := m["subscriptions"].([]any)[0].(map[string]any)
	if got, ok := sub0["filters"]; ok {
		t.Fatalf("empty subscription must omit filters, got %#v", got)
	}
}

func TestSubscribe_UpdatesFrame(t *testing.T) {
	s := New("", Options{})

	s.Subscribe([]string{" 222", "111", "111", ""})
	frame, err := s.subscribeFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sub0 := m["subscriptions"].([]any)[0].(map[string]any)
	if got := sub0["filters"]; got != `["111","222"]` {
		t.Fatalf("filters mismatch: got=%#v", got)
	}

	// Rotating to a new set replaces the old one.
	s.Subscribe([]string{"333"})
	frame, err = s.subscribeFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sub0 = m["subscriptions"].([]any)[0].(map[string]any)
	if got := sub0["filters"]; got != `["333"]` {
		t.Fatalf("filters after rotation: got=%#v", got)
	}
}

func TestSubscribe_SignalsOnlyOnChange(t *testing.T) {
	s := New("", Options{})

	s.Subscribe([]string{"111", "222"})
	select {
	case <-s.resub:
	default:
		t.Fatal("expected a resubscribe signal after a new set")
	}

	// Same set (different order, with noise) must not signal again.
	s.Subscribe([]string{"222 ", "111", "111"})
	select {
	case <-s.resub:
		t.Fatal("unchanged set must not signal a resubscribe")
	default:
	}

	s.Subscribe([]string{"333"})
	select {
	case <-s.resub:
	default:
		t.Fatal("expected a resubscribe signal after rotation")
	}
}

func TestHandleMessage_UpdatesCache(t *testing.T) {
	s := New("", Options{})

	s.handleMessage([]byte(`{
		"topic": "clob_market",
		"type": "agg_orderbook",
		"payload": {
			"asset_id": "111",
			"bids": [{"price": "0.84", "size": "100"}, {"price": "0.85", "size": "40"}],
			"asks": [{"price": "0.87", "size": "25"}, {"price": "0.86", "size": "10"}]
		}
	}`))

	quotes, err := s.Quotes(context.Background(), []string{"111", "999"})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if q := quotes["111"]; q.Buy != 0.86 || q.Sell != 0.85 {
		t.Fatalf("quote 111 = %+v, want Buy=0.86 Sell=0.85", q)
	}
	if q := quotes["999"]; q.Buy != 0 || q.Sell != 0 {
		t.Fatalf("unseen token should be zero, got %+v", q)
	}
}

func TestHandleMessage_BatchPayloadAndGarbage(t *testing.T) {
	s := New("", Options{})

	s.handleMessage([]byte(`{
		"topic": "clob_market",
		"type": "agg_orderbook",
		"payload": [
			{"asset_id": "111", "asks": [{"price": "0.50", "size": "1"}]},
			{"asset_id": "222", "bids": [{"price": "0.40", "size": "1"}]}
		]
	}`))
	s.handleMessage([]byte(`not json`))
	s.handleMessage([]byte(`{"topic": "crypto_prices", "payload": {}}`))
	s.handleMessage([]byte(`{"topic": "clob_market", "payload": {"asset_id": "111", "asks": [{"price": "bogus"}]}}`))

	quotes, err := s.Quotes(context.Background(), []string{"111", "222"})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	// The bogus book overwrote 111 with an empty quote.
	if q := quotes["111"]; q.Buy != 0 || q.Sell != 0 {
		t.Fatalf("quote 111 = %+v, want zero after bogus book", q)
	}
	if q := quotes["222"]; q.Sell != 0.40 {
		t.Fatalf("quote 222 = %+v, want Sell=0.40", q)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := (Options{}).withDefaults()
	if o.PingInterval != defaultPingInterval {
		t.Fatalf("PingInterval: got=%s want=%s", o.PingInterval, defaultPingInterval)
	}
	if o.BackoffMin <= 0 || o.BackoffMax <= 0 {
		t.Fatalf("backoff defaults missing: %#v", o)
	}
}

func TestNextBackoff_CapsAtMax(t *testing.T) {
	if got := nextBackoff(2*time.Second, 3*time.Second); got != 3*time.Second {
		t.Fatalf("got=%s want=%s", got, 3*time.Second)
	}
	if got := nextBackoff(250*time.Millisecond, 3*time.Second); got != 500*time.Millisecond {
		t.Fatalf("got=%s want=%s", got, 500*time.Millisecond)
	}
}
