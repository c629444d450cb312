package sim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/makerlab/cdp-engine/internal/auction"
	"github.com/makerlab/cdp-engine/internal/cat"
	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/keeper"
	"github.com/makerlab/cdp-engine/internal/params"
	"github.com/makerlab/cdp-engine/internal/spot"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// uniform draws from [lo, hi).
func (r *Runner) uniform(lo, hi float64) float64 {
	return lo + r.rng.Float64()*(hi-lo)
}

func vaultAddr(i int) string {
	return fmt.Sprintf("vault_%04d", i)
}

// drawVault samples a vault of eth in (1, 1000) collateral with debt
// drawn between 80% and 100% of its capacity at the current spot.
func (r *Runner) drawVault(spotWad fix.Wad) (ink, dai fix.Wad) {
	ink = fix.WadFromFloat(r.uniform(1, 1000))
	dai = ink.Mul(spotWad).Mul(fix.WadFromFloat(r.uniform(0.8, 1)))
	return ink, dai
}

// openVault deposits ink and draws dai against it at addr. It returns
// false without touching the ledger when the resulting debt would sit
// at or below the dust floor.
func openVault(v *vat.Vat, addr string, ink, dai fix.Wad) (bool, error) {
	ilk := v.Ilks[IlkEth]
	dart := dai.Div(ilk.Rate.Wad())
	if !fix.MulWR(dart, ilk.Rate).GreaterThan(ilk.Dust) {
		return false, nil
	}
	if err := v.Slip(IlkEth, addr, ink); err != nil {
		return false, err
	}
	v.InitDai(addr)
	if err := v.Frob(IlkEth, addr, ink, dart); err != nil {
		return false, err
	}
	return true, nil
}

// seedVaults is the timestep-zero population stage: it warm-starts the
// oracle, opens the initial vault set (the first two are whale vaults
// holding the flat-discount and priority keeper roles), and samples a
// tenth of the remaining vault owners as gas-capped keepers.
func (r *Runner) seedVaults(p *params.Params, s *State) (Patch, error) {
	cv := s.Vat.Clone()
	cs := s.Spotter.Clone()
	for _, ilkID := range []string{IlkEth, spot.IlkDai, spot.IlkGas} {
		if err := cs.Poke(cv, r.oracle, ilkID, s.Timestep); err != nil {
			return Patch{}, err
		}
	}

	spotWad := cv.Ilks[IlkEth].Spot.Wad()
	keepers := make(map[string]keeper.Model)
	opened := 0

	for i := 0; i < p.NumInitVaults; i++ {
		addr := vaultAddr(i)
		var ink, dai fix.Wad
		if i < 2 {
			ink = fix.WadFromInt(1_000_000)
			dai = ink.Mul(spotWad).Mul(fix.WadFromFloat(0.9))
		} else {
			ink, dai = r.drawVault(spotWad)
		}
		ok, err := openVault(cv, addr, ink, dai)
		if err != nil {
			return Patch{}, fmt.Errorf("seed vault %s: %w", addr, err)
		}
		if !ok {
			continue
		}
		opened++
		switch i {
		case 0:
			keepers[addr] = p.DiscountModel(nil)
		case 1:
			keepers[addr] = p.PriorityModel()
		}
	}

	// Sample a tenth of the ordinary vault owners as basic keepers,
	// each with its own gas-price ceiling.
	addrs := make([]string, 0, len(cv.Urns[IlkEth]))
	for addr := range cv.Urns[IlkEth] {
		if _, whale := keepers[addr]; !whale {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	r.rng.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })
	k := p.NumInitVaults / 10
	if k < 1 {
		k = 1
	}
	if k > len(addrs) {
		k = len(addrs)
	}
	for _, addr := range addrs[:k] {
		ceiling := fix.WadFromFloat(r.uniform(15e9, 50e9))
		keepers[addr] = p.DiscountModel(&ceiling)
	}

	seq := p.NumInitVaults
	stats := s.Stats
	stats.VaultsOpened += opened
	return Patch{Vat: cv, Spotter: cs, Keepers: keepers, VaultSeq: &seq, Stats: &stats}, nil
}

// tick refreshes all three price feeds and resets the per-timestep
// counters. It runs before any liquidation or bidding logic so every
// safety check this timestep sees the current price.
func (r *Runner) tick(p *params.Params, s *State) (Patch, error) {
	cv := s.Vat.Clone()
	cs := s.Spotter.Clone()
	for _, ilkID := range []string{IlkEth, spot.IlkDai, spot.IlkGas} {
		if err := cs.Poke(cv, r.oracle, ilkID, s.Timestep); err != nil {
			return Patch{}, err
		}
	}
	return Patch{Vat: cv, Spotter: cs, Stats: &Stats{}}, nil
}

// openVaults stochastically opens one new vault when the reference
// currency trades above the peg: demand for debt scales with the
// premium.
func (r *Runner) openVaults(p *params.Params, s *State) (Patch, error) {
	daiVal := s.Spotter.Val(spot.IlkDai)
	premium, _ := daiVal.Decimal().Sub(decimal.NewFromInt(1)).Float64()
	if premium <= 0 {
		return Patch{}, nil
	}
	if r.rng.Float64() > 5*premium+0.05 {
		return Patch{}, nil
	}

	cv := s.Vat.Clone()
	ink, dai := r.drawVault(cv.Ilks[IlkEth].Spot.Wad())
	addr := vaultAddr(s.VaultSeq)
	ok, err := openVault(cv, addr, ink, dai)
	if err != nil {
		if errors.Is(err, vat.ErrCeilingExceeded) || errors.Is(err, vat.ErrNotSafe) {
			r.log.Debug("vault rejected", "addr", addr, "err", err)
			return Patch{}, nil
		}
		return Patch{}, err
	}
	if !ok {
		return Patch{}, nil
	}

	seq := s.VaultSeq + 1
	stats := s.Stats
	stats.VaultsOpened++
	r.log.Debug("vault opened", "addr", addr, "ink", ink, "dai", dai)
	return Patch{Vat: cv, VaultSeq: &seq, Stats: &stats}, nil
}

// biteScan liquidates every unsafe position it can, in address order.
// Positions that cannot be bitten this timestep (liquidation box full,
// rounding to a null auction) are skipped, not fatal.
func (r *Runner) biteScan(p *params.Params, s *State) (Patch, error) {
	cv := s.Vat.Clone()
	cc := s.Cat.Clone()
	cw := s.Vow.Clone()
	cf := s.Flip.Clone()
	stats := s.Stats

	ilk := cv.Ilks[IlkEth]
	addrs := make([]string, 0, len(cv.Urns[IlkEth]))
	for addr := range cv.Urns[IlkEth] {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		urn := cv.Urns[IlkEth][addr]
		if !fix.MulWR(urn.Ink, ilk.Spot).LessThan(fix.MulWR(urn.Art, ilk.Rate)) {
			continue
		}
		id, err := cc.Bite(cv, cw, cf, IlkEth, addr, s.Timestep)
		if err != nil {
			if errors.Is(err, cat.ErrLimitHit) || errors.Is(err, cat.ErrNullAuction) || errors.Is(err, cat.ErrNotUnsafe) {
				r.log.Debug("bite skipped", "urn", addr, "err", err)
				continue
			}
			return Patch{}, err
		}
		stats.Bites++
		r.log.Debug("bite", "urn", addr, "auction", id)
	}

	return Patch{Vat: cv, Cat: cc, Vow: cw, Flip: cf, Stats: &stats}, nil
}

// bidRound runs one round of keeper bidding over the open collateral
// auctions. Bids are evaluated strictly sequentially, so each keeper
// sees the previous bidder's committed state; the policy only chooses
// the evaluation order.
func (r *Runner) bidRound(p *params.Params, s *State) (Patch, error) {
	if len(s.Keepers) == 0 || len(s.Flip.Bids) == 0 {
		return Patch{}, nil
	}

	strategies := make(map[string]keeper.Strategy, len(s.Keepers))
	for id, m := range s.Keepers {
		strat, err := keeper.New(m)
		if err != nil {
			return Patch{}, err
		}
		strategies[id] = strat
	}

	cv := s.Vat.Clone()
	cf := s.Flip.Clone()
	world := keeper.World{
		CollateralPrice: s.Spotter.Val(IlkEth),
		GasPrice:        s.Spotter.Val(spot.IlkGas),
	}

	var placed int
	var err error
	switch p.BidPolicy {
	case params.PolicyPriority:
		placed, err = r.priorityRound(cv, cf, s.Keepers, strategies, world, s.Timestep)
	default:
		placed, err = r.shuffledRound(cv, cf, strategies, world, s.Timestep)
	}
	if err != nil {
		return Patch{}, err
	}

	stats := s.Stats
	stats.Bids += placed
	return Patch{Vat: cv, Flip: cf, Stats: &stats}, nil
}

func bidStatus(b *auction.Bid, id, now int) keeper.Status {
	st := keeper.Status{
		ID:  id,
		Bid: b.Bid,
		Lot: b.Lot,
		Tab: b.Tab,
		Guy: b.Guy,
		Era: now,
		Tic: b.Tic,
		End: b.End,
	}
	if b.Lot.IsPositive() && b.Bid.IsPositive() {
		st.Price = b.Bid.DivRad(b.Lot.Rad())
	}
	return st
}

// shuffledRound lets every keeper attempt every auction, reshuffling
// the keeper order per auction.
func (r *Runner) shuffledRound(cv *vat.Vat, cf *auction.Flipper, strategies map[string]keeper.Strategy, world keeper.World, now int) (int, error) {
	order := make([]string, 0, len(strategies))
	for id := range strategies {
		order = append(order, id)
	}
	sort.Strings(order)

	total := 0
	for _, id := range cf.OpenIDs() {
		r.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, kid := range order {
			b, ok := cf.Bids[id]
			if !ok {
				break
			}
			stance, bid := strategies[kid].Evaluate(bidStatus(b, id, now), kid, world)
			if !bid {
				continue
			}
			placed, err := keeper.Apply(cv, cf, id, kid, stance, world.GasPrice, now)
			if err != nil {
				return total, err
			}
			if placed {
				total++
			}
		}
	}
	return total, nil
}

// priorityRound gives the single priority keeper first and only pick,
// walking the auctions from most to least attractive: never-bid
// auctions first, then by descending collateral per dai of the
// standing bid.
func (r *Runner) priorityRound(cv *vat.Vat, cf *auction.Flipper, keepers map[string]keeper.Model, strategies map[string]keeper.Strategy, world keeper.World, now int) (int, error) {
	var pk string
	kids := make([]string, 0, len(keepers))
	for id := range keepers {
		kids = append(kids, id)
	}
	sort.Strings(kids)
	for _, id := range kids {
		if keepers[id].Type == keeper.ModelPriority {
			pk = id
			break
		}
	}
	if pk == "" {
		return 0, nil
	}

	ids := cf.OpenIDs()
	type rank struct {
		unbid bool
		ratio decimal.Decimal
	}
	ranks := make(map[int]rank, len(ids))
	for _, id := range ids {
		b := cf.Bids[id]
		if !b.Bid.IsPositive() {
			ranks[id] = rank{unbid: true}
			continue
		}
		ranks[id] = rank{ratio: b.Lot.Decimal().Div(b.Bid.Decimal())}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := ranks[ids[i]], ranks[ids[j]]
		if ri.unbid != rj.unbid {
			return ri.unbid
		}
		if ri.unbid {
			return ids[i] < ids[j]
		}
		if !ri.ratio.Equal(rj.ratio) {
			return ri.ratio.GreaterThan(rj.ratio)
		}
		return ids[i] < ids[j]
	})

	total := 0
	for _, id := range ids {
		b, ok := cf.Bids[id]
		if !ok {
			continue
		}
		stance, bid := strategies[pk].Evaluate(bidStatus(b, id, now), pk, world)
		if !bid {
			continue
		}
		placed, err := keeper.Apply(cv, cf, id, pk, stance, world.GasPrice, now)
		if err != nil {
			return total, err
		}
		if placed {
			total++
		}
	}
	return total, nil
}

// dealScan settles every finished auction: collateral auctions pay out
// and release liquidation capacity, surplus auctions retire the winning
// gem bid, and expired unbid debt auctions restart with a wider lot.
func (r *Runner) dealScan(p *params.Params, s *State) (Patch, error) {
	cv := s.Vat.Clone()
	cc := s.Cat.Clone()
	cf := s.Flip.Clone()
	cfa := s.Flap.Clone()
	cfo := s.Flop.Clone()
	stats := s.Stats
	now := s.Timestep

	for _, id := range cf.OpenIDs() {
		if !cf.Dealable(id, now) {
			continue
		}
		if err := cf.Deal(cv, cc, id, now); err != nil {
			return Patch{}, err
		}
		stats.Deals++
		r.log.Debug("flip dealt", "auction", id)
	}

	for _, id := range cfa.OpenIDs() {
		b := cfa.Bids[id]
		if !(b.End <= now || (b.Tic != 0 && b.Tic <= now)) {
			continue
		}
		if err := cfa.Deal(cv, id, now); err != nil {
			return Patch{}, err
		}
		stats.Deals++
	}

	for _, id := range cfo.OpenIDs() {
		b := cfo.Bids[id]
		switch {
		case b.Tic == 0 && b.End <= now:
			if err := cfo.Tick(id, now); err != nil {
				return Patch{}, err
			}
		case b.Tic != 0 && (b.Tic <= now || b.End <= now):
			if err := cfo.Deal(cv, id, now); err != nil {
				return Patch{}, err
			}
			stats.Deals++
		}
	}

	return Patch{Vat: cv, Cat: cc, Flip: cf, Flap: cfa, Flop: cfo, Stats: &stats}, nil
}

// vowUpkeep runs the system debt bookkeeping at the end of the
// timestep: cancel surplus against unbacked debt, then kick a surplus
// or debt auction if the configured thresholds are crossed.
func (r *Runner) vowUpkeep(p *params.Params, s *State) (Patch, error) {
	cv := s.Vat.Clone()
	cw := s.Vow.Clone()
	cfa := s.Flap.Clone()
	cfo := s.Flop.Clone()
	now := s.Timestep

	if err := cw.Heal(cv); err != nil {
		return Patch{}, err
	}
	if id, err := cw.Flap(cv, cfa, now); err != nil {
		return Patch{}, err
	} else if id != 0 {
		r.log.Debug("flap kicked", "auction", id)
	}
	if id, err := cw.Flop(cv, cfo, now); err != nil {
		return Patch{}, err
	} else if id != 0 {
		r.log.Debug("flop kicked", "auction", id)
	}

	return Patch{Vat: cv, Vow: cw, Flap: cfa, Flop: cfo}, nil
}
