package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Quote is the live quoted price for one outcome token. Buy is the price to
// buy the token right now, Sell the price to sell; both are prediction-market
// probabilities in [0,1]. Missing or malformed values are 0.
type Quote struct {
	Buy  float64
	Sell float64
}

type priceQuery struct {
	TokenID string `json:"token_id"`
	Side    Side   `json:"side"`
}

// Prices fetches BUY and SELL quotes for each token id in one batch request.
// Tokens the CLOB does not know come back with zero quotes rather than an
// error.
func (c *Client) Prices(ctx context.Context, tokenIDs []string) (map[string]Quote, error) {
	if c == nil {
		return nil, fmt.Errorf("clob client nil")
	}
	if len(tokenIDs) == 0 {
		return map[string]Quote{}, nil
	}

	queries := make([]priceQuery, 0, 2*len(tokenIDs))
	for _, id := range tokenIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		queries = append(queries,
			priceQuery{TokenID: id, Side: SideBuy},
			priceQuery{TokenID: id, Side: SideSell},
		)
	}

	body, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("marshal price queries: %w", err)
	}

	// The CLOB encodes prices as JSON strings.
	var raw map[string]map[string]string
	if err := c.doJSONBody(ctx, http.MethodPost, "/prices", nil, body, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]Quote, len(tokenIDs))
	for _, id := range tokenIDs {
		sides := raw[id]
		out[id] = Quote{
			Buy:  coercePrice(sides[string(SideBuy)]),
			Sell: coercePrice(sides[string(SideSell)]),
		}
	}
	return out, nil
}

// coercePrice never fails: malformed quotes become 0, the safe "do not
// enter" value.
func coercePrice(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
