package auction

import (
	"errors"
	"testing"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

func wad(f float64) fix.Wad { return fix.WadFromFloat(f) }

func ray(s string) fix.Ray {
	r, err := fix.RayFromString(s)
	if err != nil {
		panic(err)
	}
	return r
}

func rad(s string) fix.Rad {
	r, err := fix.RadFromString(s)
	if err != nil {
		panic(err)
	}
	return r
}

// clawRecorder stands in for the liquidation engine on settlement.
type clawRecorder struct {
	clawed fix.Rad
	calls  int
}

func (c *clawRecorder) Claw(rad fix.Rad) {
	c.clawed = c.clawed.Add(rad)
	c.calls++
}

// newFlipEnv opens one auction: tab 1000, lot 10, kicked by "cat" for
// owner "bob" with proceeds to "vow". Keepers kate and karl each hold
// 2000 dai.
func newFlipEnv(t *testing.T) (*vat.Vat, *Flipper, int) {
	t.Helper()
	v := vat.New(rad("1000000"))
	v.Init("eth", ray("1"), rad("1000000"), rad("0"))
	f := NewFlipper("eth", ray("1.05"), 2, 5)
	for _, addr := range []string{"cat", "vow", "bob", "kate", "karl", f.Escrow()} {
		v.InitDai(addr)
	}
	if err := v.Slip("eth", "cat", wad(10)); err != nil {
		t.Fatalf("slip: %v", err)
	}
	v.Suck("vow", "kate", rad("2000"))
	v.Suck("vow", "karl", rad("2000"))

	id, err := f.Kick(v, "bob", "vow", "cat", rad("1000"), wad(10), fix.Rad{}, 0)
	if err != nil {
		t.Fatalf("kick: %v", err)
	}
	return v, f, id
}

// --- Flipper tests ---

func TestFlipKick_EscrowsLot(t *testing.T) {
	v, f, id := newFlipEnv(t)
	if !v.Gem["eth"][f.Escrow()].Equal(wad(10)) {
		t.Errorf("escrow gem = %s, want 10", v.Gem["eth"][f.Escrow()])
	}
	if !v.Gem["eth"]["cat"].IsZero() {
		t.Errorf("kicker gem = %s, want 0", v.Gem["eth"]["cat"])
	}
	b := f.Bids[id]
	if b.End != 5 || b.Tic != 0 {
		t.Errorf("deadlines tic=%d end=%d, want 0/5", b.Tic, b.End)
	}
	if !b.TendPhase() {
		t.Error("fresh auction should be in tend phase")
	}
}

func TestFlipTend_FirstBidBaseline(t *testing.T) {
	v, f, id := newFlipEnv(t)

	// With no standing bid the baseline is the tab: 100 * 1.05 << 1000.
	err := f.Tend(v, id, "kate", wad(10), rad("100"), 0)
	if !errors.Is(err, ErrInsufficientIncrease) {
		t.Fatalf("lowball first bid: got %v, want ErrInsufficientIncrease", err)
	}

	// 953 * 1.05 >= 1000 clears it.
	if err := f.Tend(v, id, "kate", wad(10), rad("953"), 0); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	b := f.Bids[id]
	if !b.Bid.Equal(rad("953")) || b.Guy != "kate" || b.Tic != 2 {
		t.Errorf("bid=%s guy=%s tic=%d, want 953/kate/2", b.Bid, b.Guy, b.Tic)
	}
	if !v.Dai["kate"].Equal(rad("1047")) || !v.Dai["vow"].Equal(rad("953")) {
		t.Errorf("dai kate=%s vow=%s after bid", v.Dai["kate"], v.Dai["vow"])
	}
}

func TestFlipTend_IncrementAndRefund(t *testing.T) {
	v, f, id := newFlipEnv(t)
	if err := f.Tend(v, id, "kate", wad(10), rad("953"), 0); err != nil {
		t.Fatalf("first bid: %v", err)
	}

	// 960 < 953 * 1.05 and is not the tab.
	err := f.Tend(v, id, "karl", wad(10), rad("960"), 1)
	if !errors.Is(err, ErrInsufficientIncrease) {
		t.Fatalf("small raise: got %v, want ErrInsufficientIncrease", err)
	}

	// Hitting the tab exactly waives the increment.
	if err := f.Tend(v, id, "karl", wad(10), rad("1000"), 1); err != nil {
		t.Fatalf("tab bid: %v", err)
	}
	if !v.Dai["kate"].Equal(rad("2000")) {
		t.Errorf("displaced bidder dai = %s, want full refund to 2000", v.Dai["kate"])
	}
	if !v.Dai["karl"].Equal(rad("1000")) || !v.Dai["vow"].Equal(rad("1000")) {
		t.Errorf("dai karl=%s vow=%s after tab bid", v.Dai["karl"], v.Dai["vow"])
	}
	if f.Bids[id].TendPhase() {
		t.Error("auction should be in dent phase at bid == tab")
	}
}

func TestFlipTend_Guards(t *testing.T) {
	v, f, id := newFlipEnv(t)

	if err := f.Tend(v, id, "kate", wad(9), rad("953"), 0); !errors.Is(err, ErrLotNotMatching) {
		t.Errorf("wrong lot: got %v", err)
	}
	if err := f.Tend(v, id, "kate", wad(10), rad("1001"), 0); !errors.Is(err, ErrHigherThanTab) {
		t.Errorf("over tab: got %v", err)
	}
	if err := f.Tend(v, id, "kate", wad(10), rad("953"), 0); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if err := f.Tend(v, id, "karl", wad(10), rad("900"), 1); !errors.Is(err, ErrBidNotHigher) {
		t.Errorf("lower bid: got %v", err)
	}
	if err := f.Tend(v, 99, "kate", wad(10), rad("1000"), 0); !errors.Is(err, ErrUnknownBid) {
		t.Errorf("unknown id: got %v", err)
	}
}

func TestFlipTend_Deadlines(t *testing.T) {
	v, f, id := newFlipEnv(t)

	// Hard deadline: end 5.
	if err := f.Tend(v, id, "kate", wad(10), rad("953"), 5); !errors.Is(err, ErrFinishedEnd) {
		t.Errorf("at end: got %v, want ErrFinishedEnd", err)
	}

	if err := f.Tend(v, id, "kate", wad(10), rad("953"), 0); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	// Soft deadline: tic = 0 + ttl = 2.
	if err := f.Tend(v, id, "karl", wad(10), rad("1000"), 2); !errors.Is(err, ErrFinishedTic) {
		t.Errorf("at tic: got %v, want ErrFinishedTic", err)
	}
}

func TestFlipDent_ShrinksLotAndRebates(t *testing.T) {
	v, f, id := newFlipEnv(t)

	// Dent before the tab is reached is rejected.
	if err := f.Dent(v, id, "kate", wad(9.5), fix.Rad{}, 0); !errors.Is(err, ErrTendNotFinished) {
		t.Fatalf("dent in tend phase: got %v", err)
	}

	if err := f.Tend(v, id, "kate", wad(10), rad("1000"), 0); err != nil {
		t.Fatalf("tend to tab: %v", err)
	}

	// 9.6 * 1.05 = 10.08 > 10: not enough of a decrease.
	err := f.Dent(v, id, "karl", wad(9.6), rad("1000"), 1)
	if !errors.Is(err, ErrInsufficientDecrease) {
		t.Fatalf("shallow dent: got %v", err)
	}

	// 9.5 * 1.05 = 9.975 <= 10 clears; the freed half ether rebates bob.
	if err := f.Dent(v, id, "karl", wad(9.5), rad("1000"), 1); err != nil {
		t.Fatalf("dent: %v", err)
	}
	b := f.Bids[id]
	if !b.Lot.Equal(wad(9.5)) || b.Guy != "karl" || b.Tic != 3 {
		t.Errorf("lot=%s guy=%s tic=%d after dent", b.Lot, b.Guy, b.Tic)
	}
	if !v.Gem["eth"]["bob"].Equal(wad(0.5)) {
		t.Errorf("owner rebate = %s, want 0.5", v.Gem["eth"]["bob"])
	}
	// Displaced tend winner is refunded in full.
	if !v.Dai["kate"].Equal(rad("2000")) {
		t.Errorf("kate dai = %s, want 2000", v.Dai["kate"])
	}
}

func TestFlipDeal_UnbidWaitsForHardDeadline(t *testing.T) {
	v, f, id := newFlipEnv(t)
	rec := &clawRecorder{}

	if err := f.Deal(v, rec, id, 4); !errors.Is(err, ErrNotFinished) {
		t.Fatalf("deal before end: got %v", err)
	}
	if f.Dealable(id, 4) {
		t.Error("unbid auction dealable before end")
	}

	// At the hard deadline the lot goes back to the zero bidder (the
	// kicker) and capacity is released.
	if err := f.Deal(v, rec, id, 5); err != nil {
		t.Fatalf("deal at end: %v", err)
	}
	if !v.Gem["eth"]["cat"].Equal(wad(10)) {
		t.Errorf("kicker gem = %s, want lot returned", v.Gem["eth"]["cat"])
	}
	if !rec.clawed.Equal(rad("1000")) || rec.calls != 1 {
		t.Errorf("clawed %s in %d calls, want tab once", rec.clawed, rec.calls)
	}
}

func TestFlipDeal_BidOnSettlesAtTic(t *testing.T) {
	v, f, id := newFlipEnv(t)
	rec := &clawRecorder{}

	if err := f.Tend(v, id, "kate", wad(10), rad("1000"), 0); err != nil {
		t.Fatalf("tend: %v", err)
	}
	if err := f.Deal(v, rec, id, 1); !errors.Is(err, ErrNotFinished) {
		t.Fatalf("deal before tic: got %v", err)
	}
	if err := f.Deal(v, rec, id, 2); err != nil {
		t.Fatalf("deal at tic: %v", err)
	}
	if !v.Gem["eth"]["kate"].Equal(wad(10)) {
		t.Errorf("winner gem = %s, want 10", v.Gem["eth"]["kate"])
	}
	// Settled auctions are gone; dealing twice is a caller bug.
	if err := f.Deal(v, rec, id, 3); !errors.Is(err, ErrUnknownBid) {
		t.Errorf("double deal: got %v", err)
	}
	if got := len(f.OpenIDs()); got != 0 {
		t.Errorf("open auctions = %d, want 0", got)
	}
}

func TestFlipClone_Independent(t *testing.T) {
	v, f, id := newFlipEnv(t)
	c := f.Clone()
	if err := f.Tend(v, id, "kate", wad(10), rad("1000"), 0); err != nil {
		t.Fatalf("tend: %v", err)
	}
	if !c.Bids[id].Bid.IsZero() {
		t.Errorf("clone bid mutated to %s", c.Bids[id].Bid)
	}
}
