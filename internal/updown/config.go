package updown

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultSeries are the crypto 15-minute up-or-down families.
var DefaultSeries = []string{
	"btc-up-or-down-15m",
	"eth-up-or-down-15m",
	"sol-up-or-down-15m",
	"xrp-up-or-down-15m",
}

// SeriesGroups holds the configured series slugs per timeframe. The flat
// visiting order is fixed: 15m, hourly, 4h, daily, each group in its
// configured order.
type SeriesGroups struct {
	Min15  []string
	Hourly []string
	Hour4  []string
	Daily  []string
}

// All flattens the groups into the deterministic visiting order, dropping
// duplicates.
func (g SeriesGroups) All() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, group := range [][]string{g.Min15, g.Hourly, g.Hour4, g.Daily} {
		for _, slug := range group {
			slug = strings.TrimSpace(slug)
			if slug == "" {
				continue
			}
			if _, ok := seen[slug]; ok {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
	}
	return out
}

// Config is the fully validated runtime configuration handed to the Runner.
type Config struct {
	Series []string // flattened slug list, fixed visiting order

	PollInterval time.Duration // active-phase quote poll cadence
	CycleEvery   time.Duration // outer seed cycle cadence

	SeedPrice float64
	SeedSize  float64

	ActiveTrading bool // run the near-expiry polling phase
	EnableTrading bool // false = dry-run, log orders instead of posting
	EnableClaims  bool
}

func (c Config) Validate() error {
	if len(c.Series) == 0 {
		return fmt.Errorf("no series configured")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %s", c.PollInterval)
	}
	if c.CycleEvery <= 0 {
		return fmt.Errorf("cycle interval must be > 0, got %s", c.CycleEvery)
	}
	if c.SeedPrice <= 0 || c.SeedPrice >= 1 {
		return fmt.Errorf("seed price must be in (0,1), got %v", c.SeedPrice)
	}
	if c.SeedSize <= 0 {
		return fmt.Errorf("seed size must be > 0, got %v", c.SeedSize)
	}
	return nil
}

// ParseSlugList splits a comma/whitespace separated slug list, dropping
// blanks and duplicates while preserving order.
func ParseSlugList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\t', ' ':
			return true
		default:
			return false
		}
	})

	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ReadSeriesFile reads series slugs from a file, one or more per line.
// Blank lines and #/// comments are skipped; trailing comments stripped.
func ReadSeriesFile(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b strings.Builder
	for sc.Scan() {
		line := stripLineComment(sc.Text())
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return ParseSlugList(b.String()), nil
}

func stripLineComment(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if idx := strings.Index(line, "//"); idx >= 0 {
		// Only a comment when it starts the line or follows whitespace.
		if idx == 0 || line[idx-1] == ' ' || line[idx-1] == '\t' {
			line = strings.TrimSpace(line[:idx])
		}
	}
	return strings.TrimSpace(line)
}
