// Package quotestream maintains a live BUY/SELL quote cache from the
// Polymarket real-time data socket, as an alternative to polling the
// CLOB /prices endpoint during the active-trading phase.
package quotestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"poly-updown/internal/clob"
)

const DefaultURL = "wss://ws-live-data.polymarket.com"

const defaultPingInterval = 5 * time.Second

type subscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`

	// Filters is a JSON string (not an object) listing the asset ids.
	Filters string `json:"filters,omitempty"`
}

type subscribeRequest struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

type envelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookPayload struct {
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

type Options struct {
	PingInterval time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	return o
}

// Source caches the latest quote per token id, fed by a background
// websocket session. Quotes not yet seen on the stream come back zero,
// the safe no-entry value. The subscription follows the token set handed
// to Subscribe, so callers can rotate it as markets roll over.
type Source struct {
	url  string
	opts Options

	mu     sync.RWMutex
	quotes map[string]clob.Quote
	want   []string // sorted, deduped

	resub chan struct{}
}

func New(url string, opts Options) *Source {
	if url == "" {
		url = DefaultURL
	}
	return &Source{
		url:    url,
		opts:   opts.withDefaults(),
		quotes: make(map[string]clob.Quote),
		resub:  make(chan struct{}, 1),
	}
}

// Subscribe replaces the set of token ids the stream follows. A live
// session resubscribes immediately; reconnects pick up the latest set.
// Calling with the same set is a no-op.
func (s *Source) Subscribe(tokenIDs []string) {
	want := normalizeTokenIDs(tokenIDs)

	s.mu.Lock()
	if slicesEqual(s.want, want) {
		s.mu.Unlock()
		return
	}
	s.want = want
	s.mu.Unlock()

	select {
	case s.resub <- struct{}{}:
	default:
	}
}

func normalizeTokenIDs(tokenIDs []string) []string {
	out := make([]string, 0, len(tokenIDs))
	seen := make(map[string]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Quotes returns the cached quote for each token id. It never blocks on
// the network.
func (s *Source) Quotes(_ context.Context, tokenIDs []string) (map[string]clob.Quote, error) {
	out := make(map[string]clob.Quote, len(tokenIDs))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range tokenIDs {
		out[id] = s.quotes[id]
	}
	return out, nil
}

// Start runs the websocket session in the background, resubscribing with
// exponential backoff after drops, until the context is cancelled. The
// initial token set may be empty; Subscribe updates it later.
func (s *Source) Start(ctx context.Context, tokenIDs []string) {
	if len(tokenIDs) > 0 {
		s.Subscribe(tokenIDs)
	}
	go func() {
		backoff := s.opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
			if err != nil {
				log.Printf("[warn] quote stream dial: %v", err)
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, s.opts.BackoffMax)
				continue
			}
			backoff = s.opts.BackoffMin

			if err := s.runSession(ctx, conn); err != nil && ctx.Err() == nil {
				log.Printf("[warn] quote stream: %v", err)
			}
			_ = conn.Close()

			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
		}
	}()
}

// subscribeFrame encodes the subscribe request for the current token set.
// An empty set omits the filters key rather than sending "null".
func (s *Source) subscribeFrame() ([]byte, error) {
	s.mu.RLock()
	want := append([]string(nil), s.want...)
	s.mu.RUnlock()

	sub := subscription{
		Topic: "clob_market",
		Type:  "agg_orderbook",
	}
	if len(want) > 0 {
		filters, err := json.Marshal(want)
		if err != nil {
			return nil, fmt.Errorf("marshal filters: %w", err)
		}
		sub.Filters = string(filters)
	}
	return json.Marshal(subscribeRequest{
		Action:        "subscribe",
		Subscriptions: []subscription{sub},
	})
}

func (s *Source) runSession(ctx context.Context, conn *websocket.Conn) error {
	// A resubscribe queued while disconnected is covered by the initial
	// frame of this session.
	select {
	case <-s.resub:
	default:
	}

	frame, err := s.subscribeFrame()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(s.opts.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-s.resub:
				frame, err := s.subscribeFrame()
				if err != nil {
					log.Printf("[warn] quote stream resubscribe: %v", err)
					continue
				}
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, frame)
				writeMu.Unlock()
				if werr != nil {
					_ = conn.Close()
					return
				}
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if werr != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || string(msg) == "ping" || string(msg) == "pong" {
			continue
		}
		s.handleMessage(msg)
	}
}

func (s *Source) handleMessage(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}
	if env.Topic != "clob_market" || len(env.Payload) == 0 {
		return
	}

	// The payload is a single book or a batch of them.
	var books []bookPayload
	if err := json.Unmarshal(env.Payload, &books); err != nil {
		var one bookPayload
		if err := json.Unmarshal(env.Payload, &one); err != nil {
			return
		}
		books = []bookPayload{one}
	}

	for _, book := range books {
		if book.AssetID == "" {
			continue
		}
		q := quoteFromBook(book)
		s.mu.Lock()
		s.quotes[book.AssetID] = q
		s.mu.Unlock()
	}
}

// quoteFromBook maps the aggregated book onto the CLOB price semantics:
// Buy = best (lowest) ask, Sell = best (highest) bid. Empty sides give 0.
func quoteFromBook(book bookPayload) clob.Quote {
	var q clob.Quote
	for _, lvl := range book.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if q.Buy == 0 || p < q.Buy {
			q.Buy = p
		}
	}
	for _, lvl := range book.Bids {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if p > q.Sell {
			q.Sell = p
		}
	}
	return q
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
