// Package fix implements the three fixed-point decimal families used by
// the ledger: Wad (18 fractional digits), Ray (27) and Rad (45).
//
// All values use shopspring/decimal, never float64 for money. Every
// value is kept truncated to its family's scale; arithmetic that can
// produce extra digits (multiplication across families, division)
// truncates toward zero at the result's scale. Precision changes are
// always explicit: widening is exact, narrowing truncates.
package fix

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fractional digits per family.
const (
	WadScale int32 = 18
	RayScale int32 = 27
	RadScale int32 = 45
)

// Wad is a quantity with 18 fractional digits (collateral, normalized debt).
type Wad struct{ d decimal.Decimal }

// Ray is a quantity with 27 fractional digits (rates, ratios).
type Ray struct{ d decimal.Decimal }

// Rad is a quantity with 45 fractional digits (dai amounts, debt).
type Rad struct{ d decimal.Decimal }

// divTrunc divides a by b, truncating toward zero at the given scale.
// decimal.Div rounds, so quotients go through QuoRem instead.
func divTrunc(a, b decimal.Decimal, scale int32) decimal.Decimal {
	q, _ := a.QuoRem(b, scale)
	return q
}

// --- Constructors ---

// NewWad truncates an arbitrary decimal to Wad scale.
func NewWad(d decimal.Decimal) Wad { return Wad{d.Truncate(WadScale)} }

// NewRay truncates an arbitrary decimal to Ray scale.
func NewRay(d decimal.Decimal) Ray { return Ray{d.Truncate(RayScale)} }

// NewRad truncates an arbitrary decimal to Rad scale.
func NewRad(d decimal.Decimal) Rad { return Rad{d.Truncate(RadScale)} }

func WadFromInt(i int64) Wad { return Wad{decimal.NewFromInt(i)} }
func RayFromInt(i int64) Ray { return Ray{decimal.NewFromInt(i)} }
func RadFromInt(i int64) Rad { return Rad{decimal.NewFromInt(i)} }

// WadFromFloat converts a float64, truncating to Wad scale. Intended for
// stochastic draws and test fixtures, not for ledger math.
func WadFromFloat(f float64) Wad { return NewWad(decimal.NewFromFloat(f)) }

func WadFromString(s string) (Wad, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Wad{}, fmt.Errorf("fix: parse wad %q: %w", s, err)
	}
	return NewWad(d), nil
}

func RayFromString(s string) (Ray, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Ray{}, fmt.Errorf("fix: parse ray %q: %w", s, err)
	}
	return NewRay(d), nil
}

func RadFromString(s string) (Rad, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rad{}, fmt.Errorf("fix: parse rad %q: %w", s, err)
	}
	return NewRad(d), nil
}

// --- Wad ---

func (w Wad) Add(o Wad) Wad { return Wad{w.d.Add(o.d)} }
func (w Wad) Sub(o Wad) Wad { return Wad{w.d.Sub(o.d)} }
func (w Wad) Neg() Wad      { return Wad{w.d.Neg()} }

// Mul multiplies two Wads, truncating the 36-digit product to Wad scale.
func (w Wad) Mul(o Wad) Wad { return Wad{w.d.Mul(o.d).Truncate(WadScale)} }

// Div divides by o, truncating toward zero at Wad scale.
func (w Wad) Div(o Wad) Wad { return Wad{divTrunc(w.d, o.d, WadScale)} }

// MulRay scales by a Ray ratio, truncating to Wad scale.
func (w Wad) MulRay(r Ray) Wad { return Wad{w.d.Mul(r.d).Truncate(WadScale)} }

func (w Wad) Cmp(o Wad) int          { return w.d.Cmp(o.d) }
func (w Wad) Equal(o Wad) bool       { return w.d.Equal(o.d) }
func (w Wad) LessThan(o Wad) bool    { return w.d.LessThan(o.d) }
func (w Wad) GreaterThan(o Wad) bool { return w.d.GreaterThan(o.d) }
func (w Wad) IsZero() bool           { return w.d.IsZero() }
func (w Wad) IsNegative() bool       { return w.d.IsNegative() }
func (w Wad) IsPositive() bool       { return w.d.IsPositive() }

func (w Wad) Min(o Wad) Wad {
	if w.d.LessThan(o.d) {
		return w
	}
	return o
}

func (w Wad) Max(o Wad) Wad {
	if w.d.GreaterThan(o.d) {
		return w
	}
	return o
}

// Ray widens to Ray scale. Exact.
func (w Wad) Ray() Ray { return Ray{w.d} }

// Rad widens to Rad scale. Exact.
func (w Wad) Rad() Rad { return Rad{w.d} }

func (w Wad) String() string           { return w.d.String() }
func (w Wad) Decimal() decimal.Decimal { return w.d }

func (w Wad) MarshalJSON() ([]byte, error) { return w.d.MarshalJSON() }

func (w *Wad) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*w = NewWad(d)
	return nil
}

// --- Ray ---

func (r Ray) Add(o Ray) Ray { return Ray{r.d.Add(o.d)} }
func (r Ray) Sub(o Ray) Ray { return Ray{r.d.Sub(o.d)} }

// Mul multiplies two Rays, truncating to Ray scale.
func (r Ray) Mul(o Ray) Ray { return Ray{r.d.Mul(o.d).Truncate(RayScale)} }

// Div divides by o, truncating toward zero at Ray scale.
func (r Ray) Div(o Ray) Ray { return Ray{divTrunc(r.d, o.d, RayScale)} }

func (r Ray) Cmp(o Ray) int          { return r.d.Cmp(o.d) }
func (r Ray) Equal(o Ray) bool       { return r.d.Equal(o.d) }
func (r Ray) GreaterThan(o Ray) bool { return r.d.GreaterThan(o.d) }
func (r Ray) IsZero() bool           { return r.d.IsZero() }
func (r Ray) IsPositive() bool       { return r.d.IsPositive() }

// Wad narrows to Wad scale, truncating.
func (r Ray) Wad() Wad { return Wad{r.d.Truncate(WadScale)} }

// Rad widens to Rad scale. Exact.
func (r Ray) Rad() Rad { return Rad{r.d} }

func (r Ray) String() string           { return r.d.String() }
func (r Ray) Decimal() decimal.Decimal { return r.d }

func (r Ray) MarshalJSON() ([]byte, error) { return r.d.MarshalJSON() }

func (r *Ray) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = NewRay(d)
	return nil
}

// --- Rad ---

func (r Rad) Add(o Rad) Rad { return Rad{r.d.Add(o.d)} }
func (r Rad) Sub(o Rad) Rad { return Rad{r.d.Sub(o.d)} }
func (r Rad) Neg() Rad      { return Rad{r.d.Neg()} }

// MulRay scales by a Ray ratio, truncating to Rad scale.
func (r Rad) MulRay(o Ray) Rad { return Rad{r.d.Mul(o.d).Truncate(RadScale)} }

// DivRad divides two Rads into a dimensionless quantity at Wad scale,
// truncating toward zero.
func (r Rad) DivRad(o Rad) Wad { return Wad{divTrunc(r.d, o.d, WadScale)} }

func (r Rad) Cmp(o Rad) int             { return r.d.Cmp(o.d) }
func (r Rad) Equal(o Rad) bool          { return r.d.Equal(o.d) }
func (r Rad) LessThan(o Rad) bool       { return r.d.LessThan(o.d) }
func (r Rad) GreaterThan(o Rad) bool    { return r.d.GreaterThan(o.d) }
func (r Rad) GreaterThanOrEqual(o Rad) bool { return r.d.GreaterThanOrEqual(o.d) }
func (r Rad) IsZero() bool              { return r.d.IsZero() }
func (r Rad) IsNegative() bool          { return r.d.IsNegative() }
func (r Rad) IsPositive() bool          { return r.d.IsPositive() }

func (r Rad) Min(o Rad) Rad {
	if r.d.LessThan(o.d) {
		return r
	}
	return o
}

func (r Rad) Max(o Rad) Rad {
	if r.d.GreaterThan(o.d) {
		return r
	}
	return o
}

// Wad narrows to Wad scale, truncating.
func (r Rad) Wad() Wad { return Wad{r.d.Truncate(WadScale)} }

// Ray narrows to Ray scale, truncating.
func (r Rad) Ray() Ray { return Ray{r.d.Truncate(RayScale)} }

func (r Rad) String() string           { return r.d.String() }
func (r Rad) Decimal() decimal.Decimal { return r.d }

func (r Rad) MarshalJSON() ([]byte, error) { return r.d.MarshalJSON() }

func (r *Rad) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = NewRad(d)
	return nil
}

// --- Cross-family products ---

// MulWR multiplies a Wad by a Ray into a Rad. The product has exactly
// 18+27 = 45 fractional digits, so this is always exact. It is the
// ledger's debt conversion: tab = art * rate.
func MulWR(w Wad, r Ray) Rad { return Rad{w.d.Mul(r.d)} }

// MulWW multiplies two Wads into a Rad. The 36-digit product widens
// exactly into Rad scale. Used for collateral valuation: lot * price.
func MulWW(a, b Wad) Rad { return Rad{a.d.Mul(b.d)} }
