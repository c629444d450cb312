// Package feed supplies price oracles backed by candle files: each feed
// is a JSON array of closes, indexed by timestep. Feeds are loaded once
// at setup; a malformed or missing file is a configuration error, never
// a mid-run failure.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/makerlab/cdp-engine/internal/fix"
)

var (
	// ErrUnknownFeed is returned for a feed id that was never loaded.
	ErrUnknownFeed = errors.New("feed: unknown feed")

	// ErrOutOfRange is returned when a timestep runs past the end of a series.
	ErrOutOfRange = errors.New("feed: timestep out of range")
)

// candle is one entry of a price-feed file.
type candle struct {
	PriceClose decimal.Decimal `json:"price_close"`
}

// FileOracle serves prices from preloaded series. The configured offset
// shifts every lookup, so a simulation can start mid-series.
type FileOracle struct {
	offset int
	series map[string][]fix.Wad
}

// NewFileOracle creates an empty oracle with the given series offset.
func NewFileOracle(offset int) *FileOracle {
	return &FileOracle{offset: offset, series: make(map[string][]fix.Wad)}
}

// LoadFile reads one feed file and registers it under feedID.
func (o *FileOracle) LoadFile(feedID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("feed: read %s: %w", path, err)
	}
	var candles []candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return fmt.Errorf("feed: parse %s: %w", path, err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("feed: %s is empty", path)
	}
	series := make([]fix.Wad, len(candles))
	for i, c := range candles {
		series[i] = fix.NewWad(c.PriceClose)
	}
	o.series[feedID] = series
	return nil
}

// LoadDir loads every *.json file in dir, registering each under its
// base name (eth.json becomes feed "eth").
func (o *FileOracle) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("feed: read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		feedID := strings.TrimSuffix(e.Name(), ".json")
		if err := o.LoadFile(feedID, filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	if len(o.series) == 0 {
		return fmt.Errorf("feed: no feeds in %s", dir)
	}
	return nil
}

// Len returns the usable length of a loaded series past the offset.
func (o *FileOracle) Len(feedID string) int {
	s, ok := o.series[feedID]
	if !ok || len(s) <= o.offset {
		return 0
	}
	return len(s) - o.offset
}

// PriceAt returns the close for feedID at the given timestep.
func (o *FileOracle) PriceAt(feedID string, timestep int) (fix.Wad, error) {
	s, ok := o.series[feedID]
	if !ok {
		return fix.Wad{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	i := o.offset + timestep
	if i < 0 || i >= len(s) {
		return fix.Wad{}, fmt.Errorf("%w: %s[%d]", ErrOutOfRange, feedID, i)
	}
	return s[i], nil
}

// Static is a fixed-price oracle, mainly for tests and dry runs: every
// timestep returns the same value per feed.
type Static map[string]fix.Wad

// PriceAt returns the configured price for feedID.
func (s Static) PriceAt(feedID string, _ int) (fix.Wad, error) {
	w, ok := s[feedID]
	if !ok {
		return fix.Wad{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	return w, nil
}

// Series serves prices from in-memory slices, clamping at the last
// value once a series runs out. Useful for scripted price paths.
type Series map[string][]fix.Wad

// PriceAt returns the price for feedID at timestep, holding the final
// value for any later timestep.
func (s Series) PriceAt(feedID string, timestep int) (fix.Wad, error) {
	vals, ok := s[feedID]
	if !ok || len(vals) == 0 {
		return fix.Wad{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	if timestep < 0 {
		return fix.Wad{}, fmt.Errorf("%w: %s[%d]", ErrOutOfRange, feedID, timestep)
	}
	if timestep >= len(vals) {
		return vals[len(vals)-1], nil
	}
	return vals[timestep], nil
}
