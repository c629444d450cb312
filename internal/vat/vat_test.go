package vat

import (
	"errors"
	"testing"

	"github.com/makerlab/cdp-engine/internal/fix"
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

// newTestVat builds a ledger with one eth-like ilk at rate 1, safety
// price 100, dust 100, and alice holding 100 unlocked collateral.
func newTestVat(t *testing.T) *Vat {
	t.Helper()
	v := New(rad("1000000000"))
	v.Init("eth", ray("1"), rad("1000000000"), rad("100"))
	if err := v.SetSpot("eth", ray("100")); err != nil {
		t.Fatalf("set spot: %v", err)
	}
	v.InitDai("alice")
	v.InitDai("vow")
	v.InitDai("cat")
	if err := v.Slip("eth", "alice", wad(100)); err != nil {
		t.Fatalf("slip: %v", err)
	}
	return v
}

// --- Frob tests ---

func TestFrob_OpensPosition(t *testing.T) {
	v := newTestVat(t)

	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	urn := v.Urns["eth"]["alice"]
	if !urn.Ink.Equal(wad(10)) || !urn.Art.Equal(wad(900)) {
		t.Errorf("urn = (%s, %s), want (10, 900)", urn.Ink, urn.Art)
	}
	if !v.Dai["alice"].Equal(rad("900")) {
		t.Errorf("alice dai = %s, want 900", v.Dai["alice"])
	}
	if !v.Debt.Equal(rad("900")) {
		t.Errorf("debt = %s, want 900", v.Debt)
	}
	if !v.Gem["eth"]["alice"].Equal(wad(90)) {
		t.Errorf("alice gem = %s, want 90", v.Gem["eth"]["alice"])
	}
}

func TestFrob_RejectsUnsafeDebtIncrease(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	// 10 ink at spot 100 supports 1000 debt; 900+200 exceeds it.
	err := v.Frob("eth", "alice", wad(0), wad(200))
	if !errors.Is(err, ErrNotSafe) {
		t.Fatalf("expected ErrNotSafe, got %v", err)
	}

	// The failed mutation must leave the ledger untouched.
	urn := v.Urns["eth"]["alice"]
	if !urn.Art.Equal(wad(900)) {
		t.Errorf("urn art = %s after failed frob, want 900", urn.Art)
	}
	if !v.Debt.Equal(rad("900")) {
		t.Errorf("debt = %s after failed frob, want 900", v.Debt)
	}
	if !v.Ilks["eth"].Art.Equal(wad(900)) {
		t.Errorf("ilk art = %s after failed frob, want 900", v.Ilks["eth"].Art)
	}
}

func TestFrob_RejectsUnsafeCollateralRemoval(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	// Removing 2 ink leaves 8*100 = 800 backing for 900 debt.
	if err := v.Frob("eth", "alice", wad(-2), wad(0)); !errors.Is(err, ErrNotSafe) {
		t.Fatalf("expected ErrNotSafe, got %v", err)
	}
}

func TestFrob_SafeDecreaseAllowedWhileUnderwater(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	// Price collapse leaves the position unsafe, but paying debt down
	// is always allowed.
	if err := v.SetSpot("eth", ray("10")); err != nil {
		t.Fatalf("set spot: %v", err)
	}
	if err := v.Frob("eth", "alice", wad(0), wad(-400)); err != nil {
		t.Fatalf("repayment rejected: %v", err)
	}
	if !v.Urns["eth"]["alice"].Art.Equal(wad(500)) {
		t.Errorf("art = %s, want 500", v.Urns["eth"]["alice"].Art)
	}
}

func TestFrob_RejectsIlkCeiling(t *testing.T) {
	v := New(rad("1000000000"))
	v.Init("eth", ray("1"), rad("500"), rad("0"))
	v.SetSpot("eth", ray("100"))
	v.InitDai("alice")
	v.Slip("eth", "alice", wad(100))

	if err := v.Frob("eth", "alice", wad(10), wad(600)); !errors.Is(err, ErrCeilingExceeded) {
		t.Fatalf("expected ErrCeilingExceeded, got %v", err)
	}
}

func TestFrob_RejectsGlobalCeiling(t *testing.T) {
	v := New(rad("500"))
	v.Init("eth", ray("1"), rad("1000000"), rad("0"))
	v.SetSpot("eth", ray("100"))
	v.InitDai("alice")
	v.Slip("eth", "alice", wad(100))

	if err := v.Frob("eth", "alice", wad(10), wad(600)); !errors.Is(err, ErrCeilingExceeded) {
		t.Fatalf("expected ErrCeilingExceeded, got %v", err)
	}
}

func TestFrob_RejectsDust(t *testing.T) {
	v := newTestVat(t)

	if err := v.Frob("eth", "alice", wad(10), wad(50)); !errors.Is(err, ErrDust) {
		t.Fatalf("expected ErrDust for 50 < 100 floor, got %v", err)
	}
}

func TestFrob_AllowsFullClose(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	// Closing to exactly zero is below dust but permitted.
	if err := v.Frob("eth", "alice", wad(-10), wad(-900)); err != nil {
		t.Fatalf("full close rejected: %v", err)
	}
	if !v.Debt.IsZero() {
		t.Errorf("debt = %s after close, want 0", v.Debt)
	}
}

func TestFrob_UnknownIlk(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("btc", "alice", wad(1), wad(0)); !errors.Is(err, ErrUnknownIlk) {
		t.Fatalf("expected ErrUnknownIlk, got %v", err)
	}
}

// --- Transfer tests ---

func TestFlux_RejectsOverdraw(t *testing.T) {
	v := newTestVat(t)
	if err := v.Flux("eth", "alice", "bob", wad(101)); !errors.Is(err, ErrInsufficientGem) {
		t.Fatalf("expected ErrInsufficientGem, got %v", err)
	}
	if err := v.Flux("eth", "alice", "bob", wad(40)); err != nil {
		t.Fatalf("flux: %v", err)
	}
	if !v.Gem["eth"]["bob"].Equal(wad(40)) {
		t.Errorf("bob gem = %s, want 40", v.Gem["eth"]["bob"])
	}
}

func TestMove_RequiresKnownAddresses(t *testing.T) {
	v := newTestVat(t)
	if err := v.Move("alice", "nobody", rad("1")); !errors.Is(err, ErrUnknownAddress) {
		t.Fatalf("expected ErrUnknownAddress, got %v", err)
	}
	if err := v.Move("nobody", "alice", rad("1")); !errors.Is(err, ErrUnknownAddress) {
		t.Fatalf("expected ErrUnknownAddress, got %v", err)
	}
}

// --- Liquidation primitive tests ---

func TestGrab_SeizesAndBooksSin(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	if err := v.Grab("eth", "alice", "cat", "vow", wad(-10), wad(-900)); err != nil {
		t.Fatalf("grab: %v", err)
	}

	urn := v.Urns["eth"]["alice"]
	if !urn.Ink.IsZero() || !urn.Art.IsZero() {
		t.Errorf("urn = (%s, %s) after grab, want (0, 0)", urn.Ink, urn.Art)
	}
	if !v.Gem["eth"]["cat"].Equal(wad(10)) {
		t.Errorf("cat gem = %s, want 10", v.Gem["eth"]["cat"])
	}
	if !v.Sin["vow"].Equal(rad("900")) {
		t.Errorf("vow sin = %s, want 900", v.Sin["vow"])
	}
	if !v.Vice.Equal(rad("900")) {
		t.Errorf("vice = %s, want 900", v.Vice)
	}
	// Alice keeps the dai she drew; total debt is unchanged.
	if !v.Debt.Equal(rad("900")) {
		t.Errorf("debt = %s, want 900", v.Debt)
	}
}

func TestGrab_UnknownUrn(t *testing.T) {
	v := newTestVat(t)
	if err := v.Grab("eth", "ghost", "cat", "vow", wad(0), wad(0)); !errors.Is(err, ErrUnknownUrn) {
		t.Fatalf("expected ErrUnknownUrn, got %v", err)
	}
}

func TestHeal_CancelsDaiAgainstSin(t *testing.T) {
	v := newTestVat(t)
	v.Suck("vow", "vow", rad("500"))

	if err := v.Heal("vow", rad("300")); err != nil {
		t.Fatalf("heal: %v", err)
	}
	if !v.Dai["vow"].Equal(rad("200")) || !v.Sin["vow"].Equal(rad("200")) {
		t.Errorf("vow dai=%s sin=%s, want 200/200", v.Dai["vow"], v.Sin["vow"])
	}
	if !v.Debt.Equal(rad("200")) || !v.Vice.Equal(rad("200")) {
		t.Errorf("debt=%s vice=%s, want 200/200", v.Debt, v.Vice)
	}

	if err := v.Heal("vow", rad("300")); err == nil {
		t.Error("expected error healing beyond balances")
	}
}

func TestSuck_MintsUnbackedDai(t *testing.T) {
	v := newTestVat(t)
	v.Suck("vow", "alice", rad("250"))

	if !v.Dai["alice"].Equal(rad("250")) {
		t.Errorf("alice dai = %s, want 250", v.Dai["alice"])
	}
	if !v.Sin["vow"].Equal(rad("250")) || !v.Vice.Equal(rad("250")) || !v.Debt.Equal(rad("250")) {
		t.Errorf("sin=%s vice=%s debt=%s, want 250 each", v.Sin["vow"], v.Vice, v.Debt)
	}
}

// --- Clone tests ---

func TestClone_Independent(t *testing.T) {
	v := newTestVat(t)
	if err := v.Frob("eth", "alice", wad(10), wad(900)); err != nil {
		t.Fatalf("frob: %v", err)
	}

	c := v.Clone()
	if err := c.Frob("eth", "alice", wad(0), wad(-400)); err != nil {
		t.Fatalf("frob on clone: %v", err)
	}

	if !v.Urns["eth"]["alice"].Art.Equal(wad(900)) {
		t.Errorf("original urn mutated through clone: art = %s", v.Urns["eth"]["alice"].Art)
	}
	if !c.Urns["eth"]["alice"].Art.Equal(wad(500)) {
		t.Errorf("clone art = %s, want 500", c.Urns["eth"]["alice"].Art)
	}
	if v.Debt.Equal(c.Debt) {
		t.Error("debt should differ between original and clone")
	}
}
