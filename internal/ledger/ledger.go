// Package ledger persists the set of market ids that have already been
// seeded, so a restarted bot never re-enters a market it touched before.
package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileFormat struct {
	Markets map[string]time.Time `json:"markets"`
}

// Ledger is a durable set of market ids. Mutations happen in memory;
// Save writes the whole set atomically.
type Ledger struct {
	path      string
	retention time.Duration

	mu      sync.Mutex
	markets map[string]time.Time
}

// Open loads the ledger at path. A missing file starts an empty ledger.
// A corrupt file also starts empty rather than blocking the bot; the
// worst case is one duplicate seed per market, which the exchange
// tolerates. Retention of 0 keeps entries forever.
func Open(path string, retention time.Duration) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		retention: retention,
		markets:   make(map[string]time.Time),
	}
	if path == "" {
		return l, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, err
	}

	var f fileFormat
	if err := json.Unmarshal(b, &f); err == nil && f.Markets != nil {
		l.markets = f.Markets
		return l, nil
	}

	// Legacy format: a bare JSON array of market ids. Entries carry no
	// timestamp, so they are stamped with the load time.
	var ids []string
	if err := json.Unmarshal(b, &ids); err == nil {
		now := time.Now().UTC()
		for _, id := range ids {
			if id != "" {
				l.markets[id] = now
			}
		}
	}
	return l, nil
}

// Contains reports whether the market id has been recorded.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.markets[id]
	return ok
}

// Mark records the market id. Marking an already-present id keeps its
// original timestamp.
func (l *Ledger) Mark(id string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markets[id]; !ok {
		l.markets[id] = time.Now().UTC()
	}
}

// Len returns the number of recorded markets.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.markets)
}

// Save writes the full set to disk via a temp file and rename, so a
// crash mid-write never leaves a truncated ledger behind. Entries older
// than the retention window are dropped on the way out.
func (l *Ledger) Save() error {
	if l.path == "" {
		return nil
	}

	l.mu.Lock()
	if l.retention > 0 {
		cutoff := time.Now().UTC().Add(-l.retention)
		for id, at := range l.markets {
			if at.Before(cutoff) {
				delete(l.markets, id)
			}
		}
	}
	snapshot := fileFormat{Markets: make(map[string]time.Time, len(l.markets))}
	for id, at := range l.markets {
		snapshot.Markets[id] = at
	}
	l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
