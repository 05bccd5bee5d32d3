package gamma

import (
	"bytes"
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

const DefaultURL = "https://gamma-api.polymarket.com"

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
		return nil, fmt.Errorf("gamma url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("gamma url must be http(s), got %q", host)
	}

	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
		userAgent: DefaultUserAgent,
	}, nil
}

// Series is a recurring family of up-or-down markets (e.g. "BTC 15m").
// Events are the concrete time-boxed rounds; their order in the payload is
// not guaranteed.
type Series struct {
	ID     string  `json:"id"`
	Slug   string  `json:"slug"`
	Title  string  `json:"title"`
	Events []Event `json:"events"`
}

// Event is one round of a series. EndDate is zero when the payload carried a
// missing or unparseable timestamp; callers treat such events as ineligible.
type Event struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	EndDate flexTime `json:"endDate"`
}

// End returns the event expiry; zero if missing/unparseable.
func (e Event) End() time.Time { return time.Time(e.EndDate) }

// Market is the tradable instance behind an event slug.
type Market struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	Slug          string     `json:"slug"`
	EndDate       flexTime   `json:"endDate"`
	TokenIDs      stringList `json:"clobTokenIds"`
	OutcomePrices floatList  `json:"outcomePrices"`
	Volume        flexFloat  `json:"volume"`
	Liquidity     flexFloat  `json:"liquidity"`
}

// End returns the market expiry; zero if missing/unparseable.
func (m Market) End() time.Time { return time.Time(m.EndDate) }

// TokenPair extracts the (yes, no) outcome token ids. At least two ids are
// required; anything beyond the first two is ignored.
func (m Market) TokenPair() (yes, no string, err error) {
	ids := make([]string, 0, 2)
	for _, id := range m.TokenIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		if len(ids) == 2 {
			break
		}
	}
	if len(ids) < 2 {
		return "", "", fmt.Errorf("market %s: expected 2 clobTokenIds, got %d", m.ID, len(ids))
	}
	return ids[0], ids[1], nil
}

type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = flexTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = flexTime{}
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = flexTime(parsed.UTC())
			return nil
		}
	}
	// A bad timestamp excludes the event from selection; it never aborts the
	// whole series decode.
	*t = flexTime{}
	return nil
}

func (t flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339))
}

// stringList accepts both a JSON array and gamma's common encoding of a JSON
// string that itself contains a JSON array.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}

	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		var vals []string
		if err := json.Unmarshal([]byte(raw), &vals); err != nil {
			return err
		}
		*s = vals
		return nil
	}

	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}

// floatList decodes the same shapes as stringList but with numeric elements,
// which gamma also quotes ("[\"0.52\", \"0.48\"]"). Elements that fail to
// parse come back as 0.
type floatList []float64

func (f *floatList) UnmarshalJSON(b []byte) error {
	var raw stringList
	if err := raw.UnmarshalJSON(b); err != nil {
		var nums []float64
		if err2 := json.Unmarshal(bytes.TrimSpace(b), &nums); err2 == nil {
			*f = nums
			return nil
		}
		return err
	}
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = 0
		}
		out[i] = v
	}
	*f = out
	return nil
}

// flexFloat accepts a bare number, a quoted number, or null. Gamma flips
// between these encodings for informational fields like volume; none of
// them may fail the market decode. Garbage parses as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = 0
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// Series fetches one recurring series (with its event list) by series slug.
func (c *Client) Series(ctx context.Context, slug string) (Series, error) {
	if c == nil {
		return Series{}, fmt.Errorf("gamma client nil")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Series{}, fmt.Errorf("series slug required")
	}

	q := url.Values{}
	q.Set("slug", slug)

	var out []Series
	if err := c.getJSON(ctx, "/series?"+q.Encode(), &out); err != nil {
		return Series{}, err
	}
	if len(out) == 0 {
		return Series{}, fmt.Errorf("gamma: no series for slug %q", slug)
	}
	return out[0], nil
}

// MarketBySlug fetches the market tied to an event slug.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (Market, error) {
	if c == nil {
		return Market{}, fmt.Errorf("gamma client nil")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Market{}, fmt.Errorf("market slug required")
	}

	q := url.Values{}
	q.Set("slug", slug)

	var out []Market
	if err := c.getJSON(ctx, "/markets?"+q.Encode(), &out); err != nil {
		return Market{}, err
	}
	if len(out) == 0 {
		return Market{}, fmt.Errorf("gamma: no market for slug %q", slug)
	}

	// Prefer an exact slug match; gamma occasionally returns siblings.
	for _, m := range out {
		if strings.TrimSpace(m.Slug) == slug {
			return m, nil
		}
	}
	return out[0], nil
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
		body := readBodyLimit(resp.Body, 8<<10)
		return fmt.Errorf("gamma %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("gamma decode: %w", err)
	}
	return nil
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	lr := &io.LimitedReader{R: r, N: max}
	b, _ := io.ReadAll(lr)
	return strings.TrimSpace(string(b))
}
