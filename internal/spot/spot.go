// Package spot adapts external price feeds into the ledger's safety
// prices. Each poke reads one ilk's feed at the current timestep and,
// for real collateral ilks, writes spot = val / par / mat into the vat.
package spot

import (
	"fmt"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// Reference ilks that carry a feed but no safety price: the reference
// currency itself and the synthetic gas-price series.
const (
	IlkDai = "dai"
	IlkGas = "gas"
)

// Oracle supplies prices. PriceAt must be pure: the same feed and
// timestep always produce the same value.
type Oracle interface {
	PriceAt(feedID string, timestep int) (fix.Wad, error)
}

// Ilk is the oracle configuration for one collateral type.
type Ilk struct {
	Mat fix.Ray `json:"mat"` // liquidation ratio
	Pip string  `json:"pip"` // feed identifier
	Val fix.Wad `json:"val"` // last observed raw price
}

// Spotter converts raw feed prices into ledger safety prices.
type Spotter struct {
	Par  fix.Ray         `json:"par"` // reference peg, typically 1.0
	Ilks map[string]*Ilk `json:"ilks"`
}

// New creates a spotter with the given peg and no ilks.
func New(par fix.Ray) *Spotter {
	return &Spotter{Par: par, Ilks: make(map[string]*Ilk)}
}

// Init registers an ilk's feed and liquidation ratio.
func (s *Spotter) Init(ilkID string, mat fix.Ray, pip string) {
	s.Ilks[ilkID] = &Ilk{Mat: mat, Pip: pip}
}

// Poke reads the current price for ilkID and records it. For ilks other
// than the reference currency and the gas series it also computes and
// writes the safety price into the vat, so that every collateralization
// check this timestep sees the fresh price.
func (s *Spotter) Poke(v *vat.Vat, orc Oracle, ilkID string, now int) error {
	ilk, ok := s.Ilks[ilkID]
	if !ok {
		return fmt.Errorf("spot: unknown ilk %s", ilkID)
	}
	val, err := orc.PriceAt(ilk.Pip, now)
	if err != nil {
		return fmt.Errorf("spot: poke %s: %w", ilkID, err)
	}
	ilk.Val = val

	if ilkID == IlkDai || ilkID == IlkGas {
		return nil
	}
	spotPrice := val.Ray().Div(s.Par).Div(ilk.Mat)
	return v.SetSpot(ilkID, spotPrice)
}

// Val returns the last observed raw price for an ilk.
func (s *Spotter) Val(ilkID string) fix.Wad {
	if ilk, ok := s.Ilks[ilkID]; ok {
		return ilk.Val
	}
	return fix.Wad{}
}

// Clone deep-copies the spotter.
func (s *Spotter) Clone() *Spotter {
	c := &Spotter{Par: s.Par, Ilks: make(map[string]*Ilk, len(s.Ilks))}
	for id, ilk := range s.Ilks {
		cp := *ilk
		c.Ilks[id] = &cp
	}
	return c
}
