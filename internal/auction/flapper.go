package auction

import (
	"fmt"
	"sort"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// FlapBid is the state of one surplus auction: a fixed dai lot sold for
// a rising bid of the system gem.
type FlapBid struct {
	Bid fix.Wad `json:"bid"` // standing gem bid
	Lot fix.Rad `json:"lot"` // dai surplus on offer
	Guy string  `json:"guy"`
	Tic int     `json:"tic"`
	End int     `json:"end"`
}

// Flapper runs surplus auctions: the tend-only specialization of the
// two-phase machine. The winning gem bid is retired on settlement.
type Flapper struct {
	GemID  string           `json:"gem"`
	Beg    fix.Ray          `json:"beg"`
	TTL    int              `json:"ttl"`
	Tau    int              `json:"tau"`
	Kicks  int              `json:"kicks"`
	Bids   map[int]*FlapBid `json:"bids"`
	escrow string
}

// NewFlapper creates a surplus auction house bidding in gemID.
func NewFlapper(gemID string, beg fix.Ray, ttl, tau int) *Flapper {
	return &Flapper{
		GemID:  gemID,
		Beg:    beg,
		TTL:    ttl,
		Tau:    tau,
		Bids:   make(map[int]*FlapBid),
		escrow: "flapper",
	}
}

// Escrow returns the address holding the auctioned dai.
func (f *Flapper) Escrow() string { return f.escrow }

// Kick opens a surplus auction, escrowing the dai lot from gal.
func (f *Flapper) Kick(v *vat.Vat, gal string, lot fix.Rad, now int) (int, error) {
	if err := v.Move(gal, f.escrow, lot); err != nil {
		return 0, err
	}
	f.Kicks++
	id := f.Kicks
	f.Bids[id] = &FlapBid{
		Lot: lot,
		Guy: gal,
		End: now + f.Tau,
	}
	return id, nil
}

// Tend raises the gem bid for the fixed dai lot. The displaced
// incumbent gets their gem back; the increment is escrowed for burning.
func (f *Flapper) Tend(v *vat.Vat, id int, guy string, lot fix.Rad, bid fix.Wad, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flap %d", ErrUnknownBid, id)
	}
	if b.Tic != 0 && b.Tic <= now {
		return ErrFinishedTic
	}
	if b.End <= now {
		return ErrFinishedEnd
	}
	if !lot.Equal(b.Lot) {
		return ErrLotNotMatching
	}
	if !bid.GreaterThan(b.Bid) {
		return ErrBidNotHigher
	}
	if !b.Bid.IsZero() && bid.LessThan(b.Bid.MulRay(f.Beg)) {
		return ErrInsufficientIncrease
	}

	if guy != b.Guy {
		if err := v.Flux(f.GemID, guy, b.Guy, b.Bid); err != nil {
			return err
		}
		b.Guy = guy
	}
	if err := v.Flux(f.GemID, guy, f.escrow, bid.Sub(b.Bid)); err != nil {
		return err
	}

	b.Bid = bid
	b.Tic = now + f.TTL
	return nil
}

// Deal settles an expired surplus auction: the dai lot goes to the
// standing bidder and the escrowed gem bid is retired. A never-bid
// auction returns its lot to the kicker at the hard deadline.
func (f *Flapper) Deal(v *vat.Vat, id, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flap %d", ErrUnknownBid, id)
	}
	if !(b.End <= now || (b.Tic != 0 && b.Tic <= now)) {
		return ErrNotFinished
	}

	if err := v.Move(f.escrow, b.Guy, b.Lot); err != nil {
		return err
	}
	if !b.Bid.IsZero() {
		if err := v.Slip(f.GemID, f.escrow, b.Bid.Neg()); err != nil {
			return err
		}
	}
	delete(f.Bids, id)
	return nil
}

// OpenIDs returns the open auction ids in ascending order.
func (f *Flapper) OpenIDs() []int {
	ids := make([]int, 0, len(f.Bids))
	for id := range f.Bids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone deep-copies the flapper.
func (f *Flapper) Clone() *Flapper {
	c := &Flapper{
		GemID:  f.GemID,
		Beg:    f.Beg,
		TTL:    f.TTL,
		Tau:    f.Tau,
		Kicks:  f.Kicks,
		Bids:   make(map[int]*FlapBid, len(f.Bids)),
		escrow: f.escrow,
	}
	for id, b := range f.Bids {
		cp := *b
		c.Bids[id] = &cp
	}
	return c
}
