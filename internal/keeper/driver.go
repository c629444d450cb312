package keeper

import (
	"errors"

	"github.com/makerlab/cdp-engine/internal/auction"
	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// Apply turns a stance into an actual tend or dent on auction id,
// enforcing the phase rules and the keeper's dai balance. Returns true
// when a bid was placed. A stance that cannot clear the increment
// rules, afford the bid, or beat the gas ceiling simply does not bid;
// only state-consistency failures surface as errors.
func Apply(v *vat.Vat, f *auction.Flipper, id int, keeperID string, s Stance, gasPrice fix.Wad, now int) (bool, error) {
	b, ok := f.Bids[id]
	if !ok {
		return false, auction.ErrUnknownBid
	}
	if s.GasPrice != nil && gasPrice.GreaterThan(*s.GasPrice) {
		return false, nil
	}
	if !s.Price.IsPositive() {
		return false, nil
	}

	if !b.TendPhase() {
		// Dent phase: offer to take less collateral at the saturated bid.
		ourLot := b.Bid.DivRad(s.Price.Rad())
		if !f.SufficientDent(b, ourLot) {
			return false, nil
		}
		if v.Dai[keeperID].LessThan(b.Bid) {
			return false, nil
		}
		return placed(f.Dent(v, id, keeperID, ourLot, b.Bid, now))
	}

	// Tend phase: bid up to our price for the full lot, capped at tab.
	ourBid := fix.MulWW(b.Lot, s.Price).Min(b.Tab)
	if !ourBid.GreaterThan(b.Bid) || !f.SufficientTend(b, ourBid) {
		return false, nil
	}
	need := ourBid
	if keeperID == b.Guy {
		need = ourBid.Sub(b.Bid) // incumbent's standing bid is refunded
	}
	if v.Dai[keeperID].LessThan(need) {
		return false, nil
	}
	return placed(f.Tend(v, id, keeperID, b.Lot, ourBid, now))
}

// placed folds an auction-engine result into the driver's contract:
// recoverable bid rejections become a quiet no-bid, consistency errors
// propagate.
func placed(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, auction.ErrUnknownBid) || errors.Is(err, vat.ErrUnknownAddress) {
		return false, err
	}
	return false, nil
}
