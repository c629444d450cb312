// Package params holds the flat set of simulation constants. Params
// are enumerated at setup, validated before any timestep runs, and
// immutable thereafter.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/keeper"
)

// ErrInvalid wraps all parameter validation failures.
var ErrInvalid = errors.New("params: invalid")

// BidPolicy selects how the bidding round orders keepers and auctions.
type BidPolicy string

const (
	// PolicyShuffled evaluates keepers in a seeded-random order per
	// auction: uncoordinated competition, nobody can rely on going first.
	PolicyShuffled BidPolicy = "shuffled"

	// PolicyPriority sorts open auctions by descending effective
	// discount and gives the single priority keeper first and only pick.
	PolicyPriority BidPolicy = "priority"
)

// Params is the flat mapping of simulation constants.
type Params struct {
	Seed         int64 `json:"seed"`
	Timesteps    int   `json:"timesteps"`
	InitTimestep int   `json:"init_timestep"` // offset into the price feeds

	NumInitVaults int       `json:"num_init_vaults"`
	BidPolicy     BidPolicy `json:"bid_policy"`

	// Ledger.
	VatLine fix.Rad `json:"vat_line"`
	EthRate fix.Ray `json:"eth_rate"`
	EthLine fix.Rad `json:"eth_line"`
	EthDust fix.Rad `json:"eth_dust"`

	// Oracle adapter.
	SpotterPar fix.Ray `json:"spotter_par"`
	EthMat     fix.Ray `json:"eth_mat"`
	EthPip     string  `json:"eth_pip"`
	DaiPip     string  `json:"dai_pip"`
	GasPip     string  `json:"gas_pip"`

	// Liquidation engine.
	CatBox  fix.Rad `json:"cat_box"`
	EthChop fix.Ray `json:"eth_chop"`
	EthDunk fix.Rad `json:"eth_dunk"`

	// Collateral auctions.
	FlipBeg fix.Ray `json:"flip_beg"`
	FlipTTL int     `json:"flip_ttl"`
	FlipTau int     `json:"flip_tau"`

	// Surplus auctions.
	FlapBeg fix.Ray `json:"flap_beg"`
	FlapTTL int     `json:"flap_ttl"`
	FlapTau int     `json:"flap_tau"`

	// Debt auctions.
	FlopBeg fix.Ray `json:"flop_beg"`
	FlopPad fix.Ray `json:"flop_pad"`
	FlopTTL int     `json:"flop_ttl"`
	FlopTau int     `json:"flop_tau"`

	// Vow thresholds.
	VowDump fix.Wad `json:"vow_dump"`
	VowSump fix.Rad `json:"vow_sump"`
	VowBump fix.Rad `json:"vow_bump"`
	VowHump fix.Rad `json:"vow_hump"`

	// Strategy tuning.
	KeeperDiscount float64 `json:"keeper_discount"` // flat-discount fraction
}

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

// Default returns a workable parameter set for an eth-collateral run.
func Default() *Params {
	return &Params{
		Seed:          1,
		Timesteps:     100,
		InitTimestep:  0,
		NumInitVaults: 100,
		BidPolicy:     PolicyShuffled,

		VatLine: rad("1000000000000"),
		EthRate: ray("1"),
		EthLine: rad("1000000000000"),
		EthDust: rad("100"),

		SpotterPar: ray("1"),
		EthMat:     ray("1.5"),
		EthPip:     "eth",
		DaiPip:     "dai",
		GasPip:     "gas",

		CatBox:  rad("10000000"),
		EthChop: ray("1.1"),
		EthDunk: rad("50000"),

		FlipBeg: ray("1.05"),
		FlipTTL: 2,
		FlipTau: 5,

		FlapBeg: ray("1.05"),
		FlapTTL: 2,
		FlapTau: 5,

		FlopBeg: ray("1.05"),
		FlopPad: ray("1.2"),
		FlopTTL: 2,
		FlopTau: 5,

		VowDump: fix.WadFromInt(250),
		VowSump: rad("50000"),
		VowBump: rad("10000"),
		VowHump: rad("500000"),

		KeeperDiscount: 0.15,
	}
}

// Load decodes a JSON parameter document over the defaults.
func Load(r io.Reader) (*Params, error) {
	p := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate surfaces configuration errors before any timestep runs.
func (p *Params) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if p.Timesteps <= 0 {
		return fail("timesteps must be positive, got %d", p.Timesteps)
	}
	if p.NumInitVaults <= 0 {
		return fail("num_init_vaults must be positive, got %d", p.NumInitVaults)
	}
	if p.BidPolicy != PolicyShuffled && p.BidPolicy != PolicyPriority {
		return fail("unknown bid policy %q", p.BidPolicy)
	}
	if !p.EthRate.IsPositive() {
		return fail("eth_rate must be positive")
	}
	if !p.SpotterPar.IsPositive() || !p.EthMat.IsPositive() {
		return fail("spotter_par and eth_mat must be positive")
	}
	one := fix.RayFromInt(1)
	if !p.EthChop.GreaterThan(one) && !p.EthChop.Equal(one) {
		return fail("eth_chop must be at least 1")
	}
	for name, beg := range map[string]fix.Ray{
		"flip_beg": p.FlipBeg, "flap_beg": p.FlapBeg, "flop_beg": p.FlopBeg,
	} {
		if !beg.GreaterThan(one) {
			return fail("%s must exceed 1", name)
		}
	}
	if !p.FlopPad.GreaterThan(one) {
		return fail("flop_pad must exceed 1")
	}
	for name, v := range map[string]int{
		"flip_ttl": p.FlipTTL, "flip_tau": p.FlipTau,
		"flap_ttl": p.FlapTTL, "flap_tau": p.FlapTau,
		"flop_ttl": p.FlopTTL, "flop_tau": p.FlopTau,
	} {
		if v <= 0 {
			return fail("%s must be positive", name)
		}
	}
	if !p.CatBox.IsPositive() || !p.EthDunk.IsPositive() {
		return fail("cat_box and eth_dunk must be positive")
	}
	if p.EthPip == "" || p.DaiPip == "" || p.GasPip == "" {
		return fail("all pip feed ids must be set")
	}
	if p.KeeperDiscount < 0 || p.KeeperDiscount >= 1 {
		return fail("keeper_discount must be in [0, 1), got %v", p.KeeperDiscount)
	}
	return nil
}

// DiscountModel returns the flat-discount bidding model with the given
// gas ceiling (nil for none).
func (p *Params) DiscountModel(gasCeiling *fix.Wad) keeper.Model {
	return keeper.Model{
		Type:       keeper.ModelDiscount,
		Discount:   decimal.NewFromFloat(p.KeeperDiscount),
		GasCeiling: gasCeiling,
	}
}

// PriorityModel returns the privileged first-pick bidding model.
func (p *Params) PriorityModel() keeper.Model {
	return keeper.Model{
		Type:     keeper.ModelPriority,
		Discount: decimal.NewFromFloat(p.KeeperDiscount),
	}
}
