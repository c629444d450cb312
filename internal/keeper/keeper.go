// Package keeper implements the automated bidding agents competing in
// collateral auctions. A keeper pairs a ledger address with a bidding
// model; models form a closed set and evaluate to a price stance (or
// decline to bid) given the auction status and world prices.
package keeper

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/makerlab/cdp-engine/internal/fix"
)

// ErrUnknownModel is returned at setup for a model type outside the
// closed set.
var ErrUnknownModel = errors.New("keeper: unknown model type")

// ModelType names a bidding model.
type ModelType string

const (
	// ModelDiscount bids at the oracle price shaved by a flat discount,
	// optionally refusing to act when the synthetic gas price is above
	// the keeper's ceiling.
	ModelDiscount ModelType = "discount"

	// ModelPriority is the privileged variant: the same flat-discount
	// pricing, but the bidding round grants its single holder first and
	// only pick over auctions ordered by attractiveness.
	ModelPriority ModelType = "priority"
)

// Model is a keeper's bidding configuration.
type Model struct {
	Type       ModelType       `json:"type"`
	Discount   decimal.Decimal `json:"discount"`              // fraction of oracle price conceded
	GasCeiling *fix.Wad        `json:"gas_ceiling,omitempty"` // skip bidding above this gas price
}

// Status is a read-only view of one open auction handed to strategies.
type Status struct {
	ID    int
	Bid   fix.Rad
	Lot   fix.Wad
	Tab   fix.Rad
	Guy   string
	Era   int // current timestep
	Tic   int
	End   int
	Price fix.Wad // implied price bid/lot; zero while lot or bid is zero
}

// World is the slice of ledger state strategies may read.
type World struct {
	CollateralPrice fix.Wad // raw oracle price of the auctioned collateral
	GasPrice        fix.Wad // synthetic gas price series
}

// Stance is a strategy's decision to bid: a target price in dai per
// unit collateral, and optionally a gas-price ceiling that voids the
// stance when the current gas price is above it.
type Stance struct {
	Price    fix.Wad
	GasPrice *fix.Wad
}

// Strategy evaluates an auction to a stance. The second return is false
// when the keeper declines to bid this round. Strategies are pure: all
// state they act on arrives through the arguments.
type Strategy interface {
	Evaluate(st Status, keeperID string, w World) (Stance, bool)
}

// New builds the strategy for a model. The model set is closed; unknown
// types are a configuration error.
func New(m Model) (Strategy, error) {
	switch m.Type {
	case ModelDiscount:
		return discountStrategy{discount: m.Discount, gasCeiling: m.GasCeiling}, nil
	case ModelPriority:
		return discountStrategy{discount: m.Discount}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, m.Type)
	}
}

// discountStrategy bids at oracle * (1 - discount) whenever the oracle
// has a price, regardless of the auction's current standing.
type discountStrategy struct {
	discount   decimal.Decimal
	gasCeiling *fix.Wad
}

func (s discountStrategy) Evaluate(_ Status, _ string, w World) (Stance, bool) {
	if !w.CollateralPrice.IsPositive() {
		return Stance{}, false
	}
	factor := decimal.NewFromInt(1).Sub(s.discount)
	price := fix.NewWad(w.CollateralPrice.Decimal().Mul(factor))
	return Stance{Price: price, GasPrice: s.gasCeiling}, true
}
