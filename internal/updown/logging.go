package updown

import (
	"log"

	"poly-updown/internal/jsonl"
)

// botEvent is one JSONL record in the trade log. Event values: start,
// cycle, seed, seed_skip, entry, order, claim, summary.
type botEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`

	Mode   string   `json:"mode,omitempty"` // dry | live
	Series []string `json:"series,omitempty"`

	SeriesSlug string `json:"series_slug,omitempty"`
	EventSlug  string `json:"event_slug,omitempty"`
	MarketID   string `json:"market_id,omitempty"`

	// Entry decision fields.
	Outcome     string  `json:"outcome,omitempty"` // YES | NO
	Threshold   float64 `json:"threshold,omitempty"`
	SecondsLeft float64 `json:"seconds_left,omitempty"`

	// Per-order fields.
	TokenID string  `json:"token_id,omitempty"`
	Price   float64 `json:"price,omitempty"`
	Size    float64 `json:"size,omitempty"`
	OrderID string  `json:"order_id,omitempty"`
	Ok      bool    `json:"ok,omitempty"`

	Reason string `json:"reason,omitempty"`
	Err    string `json:"err,omitempty"`

	Cycle    int   `json:"cycle,omitempty"`
	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func botMode(enableTrading bool) string {
	if enableTrading {
		return "live"
	}
	return "dry"
}

func logBotEvent(w *jsonl.Writer, ev botEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] trade log write failed: %v", err)
	}
}
