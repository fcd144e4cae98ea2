package core

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// WadDigits is the number of fractional digits carried by Decimal.
const WadDigits = 18

var (
	maxScaled       = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxDecimalValue = decimal.NewFromBigInt(maxScaled, -WadDigits)
	maxUint64Value  = decimal.NewFromUint64(math.MaxUint64)
)

type (
	// Decimal is a non-negative fixed-point value with WadDigits fractional
	// digits. The scaled magnitude is bounded by 2^128-1; every operation
	// checks the bound and returns ErrMathOverflow instead of wrapping.
	Decimal struct {
		v decimal.Decimal
	}

	// Rate is a Decimal used for ratios and per-slot interest rates.
	Rate = Decimal
)

func ZeroDecimal() Decimal {
	return Decimal{decimal.Zero}
}

func OneDecimal() Decimal {
	return Decimal{ONE}
}

func NewDecimal(amount uint64) Decimal {
	return Decimal{decimal.NewFromUint64(amount)}
}

// NewDecimalFromValue checks an arbitrary decimal into the Decimal domain.
func NewDecimalFromValue(v decimal.Decimal) (Decimal, error) {
	if v.IsNegative() {
		return Decimal{}, ErrUnderflow
	}
	return checkBound(v.Truncate(WadDigits))
}

// MustDecimalFromString panics on malformed input, for constants and tests.
func MustDecimalFromString(s string) Decimal {
	d, err := NewDecimalFromValue(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return d
}

// RateFromPercent builds a ratio from a whole percentage.
func RateFromPercent(pct uint8) Rate {
	return Rate{decimal.New(int64(pct), -2)}
}

// RateFromScaled builds a ratio from a wad-scaled raw value.
func RateFromScaled(scaled uint64) Rate {
	return Rate{decimal.NewFromBigInt(new(big.Int).SetUint64(scaled), -WadDigits)}
}

func checkBound(v decimal.Decimal) (Decimal, error) {
	if v.GreaterThan(maxDecimalValue) {
		return Decimal{}, ErrMathOverflow
	}
	return Decimal{v}, nil
}

func (d Decimal) Value() decimal.Decimal {
	return d.v
}

func (d Decimal) String() string {
	return d.v.String()
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return d.v.MarshalJSON()
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	var v decimal.Decimal
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := NewDecimalFromValue(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Decimal) IsZero() bool {
	return d.v.IsZero()
}

func (d Decimal) Equal(other Decimal) bool {
	return d.v.Equal(other.v)
}

func (d Decimal) LessThan(other Decimal) bool {
	return d.v.LessThan(other.v)
}

func (d Decimal) LessThanOrEqual(other Decimal) bool {
	return d.v.LessThanOrEqual(other.v)
}

func (d Decimal) GreaterThan(other Decimal) bool {
	return d.v.GreaterThan(other.v)
}

func (d Decimal) GreaterThanOrEqual(other Decimal) bool {
	return d.v.GreaterThanOrEqual(other.v)
}

func (d Decimal) Min(other Decimal) Decimal {
	if d.v.LessThan(other.v) {
		return d
	}
	return other
}

func (d Decimal) Add(other Decimal) (Decimal, error) {
	return checkBound(d.v.Add(other.v))
}

func (d Decimal) Sub(other Decimal) (Decimal, error) {
	r := d.v.Sub(other.v)
	if r.IsNegative() {
		return Decimal{}, ErrUnderflow
	}
	return Decimal{r}, nil
}

func (d Decimal) Mul(other Decimal) (Decimal, error) {
	return checkBound(d.v.Mul(other.v).Truncate(WadDigits))
}

func (d Decimal) Div(other Decimal) (Decimal, error) {
	if other.v.IsZero() {
		return Decimal{}, ErrDivideByZero
	}
	return checkBound(d.v.DivRound(other.v, WadDigits+2).Truncate(WadDigits))
}

// Pow raises d to an integer power by repeated squaring, truncating to
// WadDigits at every multiplication like the running interest index does.
func (d Decimal) Pow(exp uint64) (Decimal, error) {
	result := OneDecimal()
	base := d
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			result, err = result.Mul(base)
			if err != nil {
				return Decimal{}, err
			}
		}
		exp >>= 1
		if exp > 0 {
			base, err = base.Mul(base)
			if err != nil {
				return Decimal{}, err
			}
		}
	}
	return result, nil
}

// CeilU64 rounds up to a whole token amount, against the debtor.
func (d Decimal) CeilU64() (uint64, error) {
	return toU64(d.v.Ceil())
}

// FloorU64 rounds down to a whole token amount, against the protocol.
func (d Decimal) FloorU64() (uint64, error) {
	return toU64(d.v.Floor())
}

// RoundU64 rounds half away from zero to a whole token amount.
func (d Decimal) RoundU64() (uint64, error) {
	return toU64(d.v.Round(0))
}

func toU64(v decimal.Decimal) (uint64, error) {
	if v.GreaterThan(maxUint64Value) {
		return 0, ErrOverflow
	}
	return v.BigInt().Uint64(), nil
}
