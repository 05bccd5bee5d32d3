// Package dataapi is a minimal Polymarket Data API client, used to list
// redeemable positions for the claim pass.
package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultURL = "https://data-api.polymarket.com"

// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
const DefaultUserAgent = "Mozilla/5.0"

type Client struct {
	host       string
	httpClient *http.Client
	userAgent  string
}

func NewClient(host string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("data api url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("data api url must be http(s), got %q", host)
	}

	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
		userAgent: DefaultUserAgent,
	}, nil
}

// Position is one outcome-token holding of a wallet. Only the fields the
// claim pass needs are modeled.
type Position struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	CurrentValue float64 `json:"currentValue"`
	Redeemable   bool    `json:"redeemable"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	EventSlug    string  `json:"eventSlug"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	EndDate      string  `json:"endDate"`
	NegativeRisk bool    `json:"negativeRisk"`
}

// RedeemablePositions pages through all redeemable positions of user,
// skipping holdings smaller than sizeThreshold. pageLimit caps one page
// (the API maxes out at 500).
func (c *Client) RedeemablePositions(ctx context.Context, user string, sizeThreshold float64, pageLimit int) ([]Position, error) {
	if c == nil {
		return nil, fmt.Errorf("data api client nil")
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("positions user required")
	}
	if pageLimit <= 0 || pageLimit > 500 {
		pageLimit = 500
	}

	const maxOffset = 10000

	var out []Position
	for offset := 0; ; {
		q := url.Values{}
		q.Set("user", user)
		q.Set("redeemable", "true")
		q.Set("sizeThreshold", strconv.FormatFloat(sizeThreshold, 'f', -1, 64))
		q.Set("limit", strconv.Itoa(pageLimit))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}

		var batch []Position
		if err := c.getJSON(ctx, "/positions?"+q.Encode(), &batch); err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < pageLimit {
			break
		}
		offset += len(batch)
		if offset >= maxOffset {
			break
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, pathAndQuery string, out any) error {
	endpoint := c.host + pathAndQuery
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("data api %s: status=%d body=%q", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("data api decode: %w", err)
	}
	return nil
}
