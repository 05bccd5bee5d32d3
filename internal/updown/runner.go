package updown

import (
	"context"
	"fmt"
	"log"
	"time"

	"poly-updown/internal/clob"
	"poly-updown/internal/gamma"
	"poly-updown/internal/jsonl"
	"poly-updown/internal/ledger"
)

// MarketData fetches series and market snapshots. *gamma.Client satisfies
// it; tests plug in fakes.
type MarketData interface {
	Series(ctx context.Context, slug string) (gamma.Series, error)
	MarketBySlug(ctx context.Context, slug string) (gamma.Market, error)
}

// QuoteSource returns live BUY/SELL quotes per token id.
type QuoteSource interface {
	Quotes(ctx context.Context, tokenIDs []string) (map[string]clob.Quote, error)
}

// OrderGateway signs and submits buy orders.
type OrderGateway interface {
	SubmitBuy(ctx context.Context, tokenID string, price, size float64) (clob.OrderReceipt, error)
}

// Claimer redeems settled positions. Optional.
type Claimer interface {
	Claim(ctx context.Context) error
}

// Runner drives the recurring seed/active-trade cycle. All network calls
// run sequentially; the ledger is the only state shared across cycles.
type Runner struct {
	cfg     Config
	data    MarketData
	quotes  QuoteSource
	orders  OrderGateway
	claimer Claimer
	seeded  *ledger.Ledger
	events  *jsonl.Writer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	startedAt time.Time
	cycles    int
}

func NewRunner(cfg Config, data MarketData, quotes QuoteSource, orders OrderGateway, claimer Claimer, seeded *ledger.Ledger, events *jsonl.Writer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("market data gateway required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("quote source required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order gateway required")
	}
	if seeded == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &Runner{
		cfg:     cfg,
		data:    data,
		quotes:  quotes,
		orders:  orders,
		claimer: claimer,
		seeded:  seeded,
		events:  events,
		now:     time.Now,
		sleep:   sleepWithContext,
	}, nil
}

// Run executes cycles until the context is cancelled. The first cycle
// starts immediately; later ones fire on the configured interval.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = r.now()
	logBotEvent(r.events, botEvent{
		TsMs:   r.now().UnixMilli(),
		Event:  "start",
		Mode:   botMode(r.cfg.EnableTrading),
		Series: append([]string(nil), r.cfg.Series...),
	})

	ticker := time.NewTicker(r.cfg.CycleEvery)
	defer ticker.Stop()

	for {
		r.runCycle(ctx)
		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
			continue
		}
		break
	}

	logBotEvent(r.events, botEvent{
		TsMs:     r.now().UnixMilli(),
		Event:    "summary",
		Mode:     botMode(r.cfg.EnableTrading),
		Cycle:    r.cycles,
		UptimeMs: r.now().Sub(r.startedAt).Milliseconds(),
	})
	return ctx.Err()
}

func (r *Runner) runCycle(ctx context.Context) {
	r.cycles++
	log.Printf("[cycle] #%d starting (%d series)", r.cycles, len(r.cfg.Series))
	logBotEvent(r.events, botEvent{
		TsMs:  r.now().UnixMilli(),
		Event: "cycle",
		Cycle: r.cycles,
	})

	r.seedPhase(ctx)
	if ctx.Err() != nil {
		return
	}

	if r.cfg.ActiveTrading {
		r.activePhase(ctx)
		if ctx.Err() != nil {
			return
		}
	}

	if r.claimer != nil && r.cfg.EnableClaims && r.now().Minute()%15 == 0 {
		if err := r.claimer.Claim(ctx); err != nil {
			log.Printf("[warn] claim: %v", err)
			logBotEvent(r.events, botEvent{TsMs: r.now().UnixMilli(), Event: "claim", Err: err.Error()})
		} else {
			logBotEvent(r.events, botEvent{TsMs: r.now().UnixMilli(), Event: "claim", Ok: true})
		}
	}
}

// seedPhase places the one-time order pair on the next bucket of every
// series. One bad series never aborts the pass; the ledger is persisted
// once at the end.
func (r *Runner) seedPhase(ctx context.Context) {
	for _, slug := range r.cfg.Series {
		if ctx.Err() != nil {
			return
		}
		if err := r.seedSeries(ctx, slug); err != nil {
			log.Printf("[warn] seed %s: %v", slug, err)
			logBotEvent(r.events, botEvent{
				TsMs:       r.now().UnixMilli(),
				Event:      "seed_skip",
				SeriesSlug: slug,
				Err:        err.Error(),
			})
		}
	}
	if err := r.seeded.Save(); err != nil {
		log.Printf("[warn] ledger save: %v", err)
	}
}

func (r *Runner) seedSeries(ctx context.Context, slug string) error {
	s, err := r.data.Series(ctx, slug)
	if err != nil {
		return fmt.Errorf("fetch series: %w", err)
	}

	// Index 1: skip the round about to close, seed the one after it.
	ev, ok := SelectFutureEvent(s.Events, 1, r.now())
	if !ok {
		log.Printf("[seed] %s: no upcoming bucket", slug)
		return nil
	}

	m, err := r.data.MarketBySlug(ctx, ev.Slug)
	if err != nil {
		return fmt.Errorf("fetch market %s: %w", ev.Slug, err)
	}
	if r.seeded.Contains(m.ID) {
		return nil
	}

	yesToken, noToken, err := m.TokenPair()
	if err != nil {
		return err
	}

	log.Printf("[seed] %s: seeding %s (market=%s, expires %s)",
		slug, ev.Slug, m.ID, m.End().Format(time.RFC3339))

	// YES first, then NO. A failed side is logged, the other side is
	// still attempted, and the market is marked regardless so the pair
	// is never retried on a later cycle.
	r.submitOrder(ctx, "seed", slug, ev.Slug, m.ID, yesToken, r.cfg.SeedPrice, r.cfg.SeedSize)
	r.submitOrder(ctx, "seed", slug, ev.Slug, m.ID, noToken, r.cfg.SeedPrice, r.cfg.SeedSize)

	r.seeded.Mark(m.ID)
	return nil
}

// activePhase polls the round closing next for each series and enters
// opportunistically on a threshold signal.
func (r *Runner) activePhase(ctx context.Context) {
	for _, slug := range r.cfg.Series {
		if ctx.Err() != nil {
			return
		}
		if err := r.activeSeries(ctx, slug); err != nil {
			log.Printf("[warn] trade %s: %v", slug, err)
		}
	}
}

func (r *Runner) activeSeries(ctx context.Context, slug string) error {
	s, err := r.data.Series(ctx, slug)
	if err != nil {
		return fmt.Errorf("fetch series: %w", err)
	}

	ev, ok := SelectFutureEvent(s.Events, 0, r.now())
	if !ok {
		return nil
	}

	for {
		m, err := r.data.MarketBySlug(ctx, ev.Slug)
		if err != nil {
			return fmt.Errorf("fetch market %s: %w", ev.Slug, err)
		}

		left := m.End().Sub(r.now())
		if left < minEntryWindow {
			// Window closing; stop polling this round.
			log.Printf("[trade] %s: %s closing (%.0fs left)", slug, ev.Slug, left.Seconds())
			return nil
		}

		yesToken, noToken, err := m.TokenPair()
		if err != nil {
			return err
		}

		quotes, err := r.quotes.Quotes(ctx, []string{yesToken, noToken})
		if err != nil {
			return fmt.Errorf("fetch quotes: %w", err)
		}

		if entry, ok := Decide(m, quotes, r.now()); ok {
			price := quotes[entry.TokenID].Sell
			log.Printf("[trade] %s: enter %s @ %.4f (threshold=%.2f, %.0fs left)",
				slug, entry.Outcome, price, entry.Threshold, entry.SecondsLeft)
			logBotEvent(r.events, botEvent{
				TsMs:        r.now().UnixMilli(),
				Event:       "entry",
				SeriesSlug:  slug,
				EventSlug:   ev.Slug,
				MarketID:    m.ID,
				Outcome:     string(entry.Outcome),
				Threshold:   entry.Threshold,
				SecondsLeft: entry.SecondsLeft,
				TokenID:     entry.TokenID,
				Price:       price,
			})
			// Exactly one order per series per cycle.
			r.submitOrder(ctx, "trade", slug, ev.Slug, m.ID, entry.TokenID, price, r.cfg.SeedSize)
			return nil
		}

		if !r.sleep(ctx, r.cfg.PollInterval) {
			return ctx.Err()
		}
	}
}

// submitOrder posts one buy order, or logs it in dry-run mode. Failures
// are logged, never propagated.
func (r *Runner) submitOrder(ctx context.Context, phase, seriesSlug, eventSlug, marketID, tokenID string, price, size float64) {
	ev := botEvent{
		TsMs:       r.now().UnixMilli(),
		Event:      "order",
		SeriesSlug: seriesSlug,
		EventSlug:  eventSlug,
		MarketID:   marketID,
		TokenID:    tokenID,
		Price:      price,
		Size:       size,
	}

	if !r.cfg.EnableTrading {
		log.Printf("[%s] dry-run: would buy token=%s… price=%.4f size=%v", phase, shortToken(tokenID), price, size)
		ev.Reason = "dry_run"
		logBotEvent(r.events, ev)
		return
	}

	receipt, err := r.orders.SubmitBuy(ctx, tokenID, price, size)
	if err != nil {
		log.Printf("[warn] %s buy token=%s…: %v", phase, shortToken(tokenID), err)
		ev.Err = err.Error()
		logBotEvent(r.events, ev)
		return
	}
	log.Printf("[%s] buy token=%s… price=%.4f size=%v id=%s status=%s",
		phase, shortToken(tokenID), price, size, receipt.OrderID, receipt.Status)
	ev.Ok = true
	ev.OrderID = receipt.OrderID
	logBotEvent(r.events, ev)
}

func shortToken(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
