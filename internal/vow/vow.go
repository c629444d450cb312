// Package vow implements the system debt and surplus bookkeeping: it
// receives seized debt from liquidations, cancels surplus dai against
// unbacked debt, and kicks surplus (flap) and debt (flop) auctions when
// the configured thresholds are crossed.
package vow

import (
	"github.com/makerlab/cdp-engine/internal/auction"
	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// Addr is the vow's ledger address.
const Addr = "vow"

// Vow tracks seized debt and drives the surplus/debt auction cycle.
type Vow struct {
	Sin  fix.Rad `json:"sin"`  // cumulative seized debt pushed by liquidations
	Dump fix.Wad `json:"dump"` // initial flop lot
	Sump fix.Rad `json:"sump"` // flop fixed bid size
	Bump fix.Rad `json:"bump"` // flap lot size
	Hump fix.Rad `json:"hump"` // surplus buffer kept out of auction
}

// New creates a vow with the given auction thresholds.
func New(dump fix.Wad, sump, bump, hump fix.Rad) *Vow {
	return &Vow{Dump: dump, Sump: sump, Bump: bump, Hump: hump}
}

// Fess pushes seized debt onto the queue. Called on every bite.
func (w *Vow) Fess(tab fix.Rad) {
	w.Sin = w.Sin.Add(tab)
}

// Heal cancels as much of the vow's dai as its unbacked debt allows.
func (w *Vow) Heal(v *vat.Vat) error {
	rad := v.Dai[Addr].Min(v.Sin[Addr])
	if !rad.IsPositive() {
		return nil
	}
	return v.Heal(Addr, rad)
}

// Flap kicks a surplus auction when the vow's dai exceeds its remaining
// unbacked debt by at least bump + hump. Returns the auction id, or 0
// when the threshold is not met.
func (w *Vow) Flap(v *vat.Vat, f *auction.Flapper, now int) (int, error) {
	if v.Dai[Addr].LessThan(v.Sin[Addr].Add(w.Bump).Add(w.Hump)) {
		return 0, nil
	}
	return f.Kick(v, Addr, w.Bump, now)
}

// Flop kicks a debt auction when the vow's unbacked debt, net of any
// dai on hand, is at least sump. Returns the auction id, or 0 when the
// threshold is not met.
func (w *Vow) Flop(v *vat.Vat, f *auction.Flopper, now int) (int, error) {
	if v.Sin[Addr].Sub(v.Dai[Addr]).LessThan(w.Sump) {
		return 0, nil
	}
	return f.Kick(Addr, w.Dump, w.Sump, now), nil
}

// Clone copies the vow.
func (w *Vow) Clone() *Vow {
	cp := *w
	return &cp
}
