package feed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/makerlab/cdp-engine/internal/fix"
)

func wad(f float64) fix.Wad { return fix.WadFromFloat(f) }

func writeFeed(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// --- FileOracle tests ---

func TestFileOracle_LoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "eth.json",
		`[{"price_close": "150.25"}, {"price_close": "148"}, {"price_close": "152.5"}]`)

	o := NewFileOracle(0)
	if err := o.LoadFile("eth", filepath.Join(dir, "eth.json")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := o.Len("eth"); got != 3 {
		t.Errorf("len = %d, want 3", got)
	}

	p, err := o.PriceAt("eth", 1)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !p.Equal(wad(148)) {
		t.Errorf("price[1] = %s, want 148", p)
	}
}

func TestFileOracle_OffsetShiftsLookups(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "eth.json",
		`[{"price_close": "100"}, {"price_close": "110"}, {"price_close": "120"}]`)

	o := NewFileOracle(2)
	if err := o.LoadFile("eth", filepath.Join(dir, "eth.json")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := o.Len("eth"); got != 1 {
		t.Errorf("len = %d, want 1 past the offset", got)
	}

	p, err := o.PriceAt("eth", 0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !p.Equal(wad(120)) {
		t.Errorf("price[0] at offset 2 = %s, want 120", p)
	}
	if _, err := o.PriceAt("eth", 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("past end: got %v, want ErrOutOfRange", err)
	}
}

func TestFileOracle_UnknownFeed(t *testing.T) {
	o := NewFileOracle(0)
	if _, err := o.PriceAt("btc", 0); !errors.Is(err, ErrUnknownFeed) {
		t.Fatalf("got %v, want ErrUnknownFeed", err)
	}
}

func TestFileOracle_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "eth.json", `[{"price_close": "150"}]`)
	writeFeed(t, dir, "dai.json", `[{"price_close": "1"}]`)
	writeFeed(t, dir, "notes.txt", `ignore me`)

	o := NewFileOracle(0)
	if err := o.LoadDir(dir); err != nil {
		t.Fatalf("load dir: %v", err)
	}
	for id, want := range map[string]float64{"eth": 150, "dai": 1} {
		p, err := o.PriceAt(id, 0)
		if err != nil {
			t.Fatalf("price %s: %v", id, err)
		}
		if !p.Equal(wad(want)) {
			t.Errorf("%s = %s, want %v", id, p, want)
		}
	}
}

func TestFileOracle_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "bad.json", `{"not": "an array"}`)
	writeFeed(t, dir, "empty.json", `[]`)

	o := NewFileOracle(0)
	if err := o.LoadFile("bad", filepath.Join(dir, "bad.json")); err == nil {
		t.Error("malformed file accepted")
	}
	if err := o.LoadFile("empty", filepath.Join(dir, "empty.json")); err == nil {
		t.Error("empty series accepted")
	}
	if err := o.LoadFile("gone", filepath.Join(dir, "gone.json")); err == nil {
		t.Error("missing file accepted")
	}
	if err := o.LoadDir(t.TempDir()); err == nil {
		t.Error("feedless dir accepted")
	}
}

// --- Static and Series tests ---

func TestStatic_FixedPrice(t *testing.T) {
	s := Static{"eth": wad(150)}
	for _, ts := range []int{0, 7, 1000} {
		p, err := s.PriceAt("eth", ts)
		if err != nil || !p.Equal(wad(150)) {
			t.Errorf("price at %d = (%s, %v), want 150", ts, p, err)
		}
	}
	if _, err := s.PriceAt("btc", 0); !errors.Is(err, ErrUnknownFeed) {
		t.Errorf("got %v, want ErrUnknownFeed", err)
	}
}

func TestSeries_ClampsAtLastValue(t *testing.T) {
	s := Series{"eth": {wad(100), wad(90), wad(80)}}
	p, err := s.PriceAt("eth", 1)
	if err != nil || !p.Equal(wad(90)) {
		t.Fatalf("price[1] = (%s, %v), want 90", p, err)
	}
	p, err = s.PriceAt("eth", 50)
	if err != nil || !p.Equal(wad(80)) {
		t.Errorf("price[50] = (%s, %v), want clamp to 80", p, err)
	}
	if _, err := s.PriceAt("eth", -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("negative timestep: got %v", err)
	}
}
