package ir

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// decimalContext is shared by every Dec operation. Precision is wide enough
// for 128-bit token amounts multiplied by 18-digit price fractions.
var decimalContext = apd.BaseContext.WithPrecision(60)

// maxAdjustedExponent bounds the magnitude of parsed decimals to
// 1e-100..1e100. Products of a few such values stay far inside the
// context's exponent range, so arithmetic on parsed input cannot overflow.
const maxAdjustedExponent = 100

// Dec is an immutable arbitrary-precision decimal used for token amounts and
// prices. Amounts are integral; prices and ratios may carry a fraction.
//
// The zero value is 0. Every operation allocates a fresh result and never
// mutates its operands, so Dec values can be copied freely.
//
// Dec serializes as a JSON string ("1000", "1.25") so no float ever reaches
// canonical JSON.
type Dec struct {
	d apd.Decimal
}

// NewDec returns the integer x as a Dec.
func NewDec(x int64) Dec {
	var r Dec
	r.d.SetInt64(x)
	return r
}

// ParseDec parses a decimal string such as "1000" or "0.015".
func ParseDec(s string) (Dec, error) {
	var r Dec
	if _, _, err := r.d.SetString(strings.TrimSpace(s)); err != nil {
		return Dec{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if r.d.Form != apd.Finite {
		return Dec{}, fmt.Errorf("invalid decimal %q: not finite", s)
	}
	if !r.d.IsZero() {
		adjusted := r.d.NumDigits() + int64(r.d.Exponent) - 1
		if adjusted > maxAdjustedExponent || adjusted < -maxAdjustedExponent {
			return Dec{}, fmt.Errorf("invalid decimal %q: magnitude out of range", s)
		}
	}
	return r, nil
}

// MustDec is like ParseDec but panics on error.
// Use only in tests or for constants.
func MustDec(s string) Dec {
	d, err := ParseDec(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Bps returns bps/10000 as a fraction.
func Bps(bps uint64) Dec {
	return mustQuo(NewDec(int64(bps)), NewDec(10_000))
}

// Percent returns p/100 as a fraction.
func Percent(p uint64) Dec {
	return mustQuo(NewDec(int64(p)), NewDec(100))
}

type binaryOp func(d, x, y *apd.Decimal) (apd.Condition, error)

func apply(op binaryOp, x, y Dec) (Dec, error) {
	var r Dec
	if _, err := op(&r.d, &x.d, &y.d); err != nil {
		return Dec{}, err
	}
	return r, nil
}

func mustApply(name string, op binaryOp, x, y Dec) Dec {
	r, err := apply(op, x, y)
	if err != nil {
		panic(fmt.Sprintf("decimal %s(%s, %s): %v", name, x, y, err))
	}
	return r
}

func mustQuo(x, y Dec) Dec {
	return mustApply("quo", decimalContext.Quo, x, y)
}

// Add returns x + y.
func (x Dec) Add(y Dec) Dec { return mustApply("add", decimalContext.Add, x, y) }

// Sub returns x - y, which may be negative.
func (x Dec) Sub(y Dec) Dec { return mustApply("sub", decimalContext.Sub, x, y) }

// SatSub returns x - y floored at zero.
func (x Dec) SatSub(y Dec) Dec {
	if x.Cmp(y) <= 0 {
		return Dec{}
	}
	return x.Sub(y)
}

// Mul returns x * y.
func (x Dec) Mul(y Dec) Dec { return mustApply("mul", decimalContext.Mul, x, y) }

// Quo returns x / y. Division by zero is an error.
func (x Dec) Quo(y Dec) (Dec, error) {
	if y.IsZero() {
		return Dec{}, fmt.Errorf("division by zero: %s / 0", x)
	}
	return apply(decimalContext.Quo, x, y)
}

// MulFloor returns floor(x * y), the integral share of an amount.
func (x Dec) MulFloor(y Dec) Dec { return x.Mul(y).Floor() }

// MulCeil returns ceil(x * y).
func (x Dec) MulCeil(y Dec) Dec { return x.Mul(y).Ceil() }

// Floor rounds toward negative infinity.
func (x Dec) Floor() Dec {
	var r Dec
	if _, err := decimalContext.Floor(&r.d, &x.d); err != nil {
		panic(fmt.Sprintf("decimal floor(%s): %v", x, err))
	}
	return r
}

// Ceil rounds toward positive infinity.
func (x Dec) Ceil() Dec {
	var r Dec
	if _, err := decimalContext.Ceil(&r.d, &x.d); err != nil {
		panic(fmt.Sprintf("decimal ceil(%s): %v", x, err))
	}
	return r
}

// AbsDiff returns |x - y|.
func (x Dec) AbsDiff(y Dec) Dec {
	if x.Cmp(y) >= 0 {
		return x.Sub(y)
	}
	return y.Sub(x)
}

// Cmp compares x and y and returns -1, 0, or +1.
func (x Dec) Cmp(y Dec) int { return x.d.Cmp(&y.d) }

// Equal reports whether x == y numerically (1.0 equals 1).
func (x Dec) Equal(y Dec) bool { return x.Cmp(y) == 0 }

// IsZero reports whether x == 0.
func (x Dec) IsZero() bool { return x.d.IsZero() }

// IsNegative reports whether x < 0.
func (x Dec) IsNegative() bool { return x.d.Sign() < 0 }

// IsInteger reports whether x has no fractional part.
func (x Dec) IsInteger() bool { return x.Floor().Equal(x) }

// MinDec returns the smaller of x and y.
func MinDec(x, y Dec) Dec {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// MaxDec returns the larger of x and y.
func MaxDec(x, y Dec) Dec {
	if x.Cmp(y) >= 0 {
		return x
	}
	return y
}

// String returns the plain (non-exponent) form with trailing zeros removed:
// 1000, 1.5, 0.015.
func (x Dec) String() string {
	var reduced apd.Decimal
	reduced.Reduce(&x.d)
	s := reduced.Text('f')
	if s == "-0" {
		return "0"
	}
	return s
}

// MarshalJSON encodes x as a JSON string.
func (x Dec) MarshalJSON() ([]byte, error) {
	return json.Marshal(x.String())
}

// UnmarshalJSON accepts a JSON string or a JSON integer literal.
func (x *Dec) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
		if strings.ContainsAny(s, ".eE") {
			return fmt.Errorf("decimal %s must be quoted when fractional", s)
		}
	}
	d, err := ParseDec(s)
	if err != nil {
		return err
	}
	*x = d
	return nil
}

// MarshalText lets Dec appear as a YAML scalar and as a map key.
func (x Dec) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText parses the textual form.
func (x *Dec) UnmarshalText(text []byte) error {
	d, err := ParseDec(string(text))
	if err != nil {
		return err
	}
	*x = d
	return nil
}
