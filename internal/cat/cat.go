// Package cat implements the liquidation engine: it seizes unsafe
// positions, opens collateral auctions for them, and enforces a global
// cap on the debt that may be in liquidation at once.
package cat

import (
	"errors"
	"fmt"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// Addr is the liquidator's ledger address: seized collateral passes
// through its gem balance on the way into auction escrow.
const Addr = "cat"

var (
	// ErrNotUnsafe is returned when the targeted position is still
	// adequately collateralized.
	ErrNotUnsafe = errors.New("cat: not unsafe")

	// ErrLimitHit is returned when the liquidation box has no usable room.
	ErrLimitHit = errors.New("cat: liquidation limit hit")

	// ErrNullAuction is returned when the computed auction amounts are
	// not positive.
	ErrNullAuction = errors.New("cat: null auction")

	// ErrOverflow is returned when the computed auction amounts exceed
	// the representable maximum.
	ErrOverflow = errors.New("cat: overflow")
)

// maxWad bounds a single auction's amounts, mirroring the ledger's
// 2^255 overflow guard.
var maxWad = func() fix.Wad {
	w, err := fix.WadFromString("57896044618658097711785492504343953926634992332820282019728792003956564819968")
	if err != nil {
		panic(err)
	}
	return w
}()

// Kicker opens a collateral auction for seized collateral. Satisfied by
// the flipper for the bitten ilk.
type Kicker interface {
	Kick(v *vat.Vat, usr, gal, guy string, tab fix.Rad, lot fix.Wad, bid fix.Rad, now int) (int, error)
}

// Feeder receives seized debt into the system debt queue. Satisfied by
// the vow.
type Feeder interface {
	Fess(tab fix.Rad)
}

// Ilk is the liquidation configuration for one collateral type.
type Ilk struct {
	Chop fix.Ray `json:"chop"` // liquidation penalty multiplier
	Dunk fix.Rad `json:"dunk"` // max debt per single auction lot
}

// Cat is the liquidation engine.
type Cat struct {
	Ilks    map[string]*Ilk `json:"ilks"`
	Box     fix.Rad         `json:"box"`    // max total debt in liquidation
	Litter  fix.Rad         `json:"litter"` // current total in liquidation
	VowAddr string          `json:"vow"`
}

// New creates a liquidation engine with the given global box.
func New(box fix.Rad, vowAddr string) *Cat {
	return &Cat{
		Ilks:    make(map[string]*Ilk),
		Box:     box,
		VowAddr: vowAddr,
	}
}

// Init registers an ilk's penalty and per-auction lot cap.
func (c *Cat) Init(ilkID string, chop fix.Ray, dunk fix.Rad) {
	c.Ilks[ilkID] = &Ilk{Chop: chop, Dunk: dunk}
}

// Bite liquidates (part of) an unsafe position: it seizes proportional
// collateral and debt, queues the seized debt with the vow, reserves
// room in the liquidation box, and kicks a collateral auction targeting
// the debt plus penalty. A position may be bitten repeatedly across
// timesteps until fully liquidated or safe again. Returns the new
// auction's id.
func (c *Cat) Bite(v *vat.Vat, vw Feeder, kicker Kicker, ilkID, addr string, now int) (int, error) {
	milk, ok := c.Ilks[ilkID]
	if !ok {
		return 0, fmt.Errorf("cat: unknown ilk %s", ilkID)
	}
	ilk, ok := v.Ilks[ilkID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vat.ErrUnknownIlk, ilkID)
	}
	urn, ok := v.Urns[ilkID][addr]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", vat.ErrUnknownUrn, ilkID, addr)
	}

	if !ilk.Spot.IsPositive() || !fix.MulWR(urn.Ink, ilk.Spot).LessThan(fix.MulWR(urn.Art, ilk.Rate)) {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotUnsafe, ilkID, addr)
	}

	room := c.Box.Sub(c.Litter)
	if !c.Litter.LessThan(c.Box) || room.LessThan(ilk.Dust) {
		return 0, fmt.Errorf("%w: litter %s box %s", ErrLimitHit, c.Litter, c.Box)
	}

	dart := urn.Art.Min(milk.Dunk.Min(room).Wad().Div(ilk.Rate.Wad()).Div(milk.Chop.Wad()))
	dink := urn.Ink.Min(urn.Ink.Mul(dart).Div(urn.Art))

	if !dart.IsPositive() || !dink.IsPositive() {
		return 0, fmt.Errorf("%w: %s/%s", ErrNullAuction, ilkID, addr)
	}
	if dart.GreaterThan(maxWad) || dink.GreaterThan(maxWad) {
		return 0, fmt.Errorf("%w: %s/%s", ErrOverflow, ilkID, addr)
	}

	if err := v.Grab(ilkID, addr, Addr, c.VowAddr, dink.Neg(), dart.Neg()); err != nil {
		return 0, err
	}
	vw.Fess(fix.MulWR(dart, ilk.Rate))

	tab := fix.MulWR(dart, ilk.Rate).MulRay(milk.Chop)
	c.Litter = c.Litter.Add(tab)

	return kicker.Kick(v, addr, c.VowAddr, Addr, tab, dink, fix.Rad{}, now)
}

// Claw releases liquidation capacity. Called exactly once per settled
// collateral auction.
func (c *Cat) Claw(rad fix.Rad) {
	c.Litter = c.Litter.Sub(rad)
}

// Clone deep-copies the liquidation engine.
func (c *Cat) Clone() *Cat {
	cp := &Cat{
		Ilks:    make(map[string]*Ilk, len(c.Ilks)),
		Box:     c.Box,
		Litter:  c.Litter,
		VowAddr: c.VowAddr,
	}
	for id, ilk := range c.Ilks {
		i := *ilk
		cp.Ilks[id] = &i
	}
	return cp
}
