package ir

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string `json:"denom"`
	Amount Dec    `json:"amount"`
}

// MaxAmount is the largest token amount, 2^128-1.
var MaxAmount = MustDec("340282366920938463463374607431768211455")

// CheckAmount reports whether d is a token amount: a non-negative integer
// no larger than MaxAmount.
func CheckAmount(d Dec) error {
	switch {
	case d.IsNegative():
		return fmt.Errorf("amount %s is negative", d)
	case !d.IsInteger():
		return fmt.Errorf("amount %s is not a whole number of tokens", d)
	case d.Cmp(MaxAmount) > 0:
		return fmt.Errorf("amount %s exceeds maximum %s", d, MaxAmount)
	}
	return nil
}

// Validate checks the denom and amount of c.
func (c Coin) Validate() error {
	if c.Denom == "" {
		return fmt.Errorf("coin %s: denom is required", c)
	}
	if err := CheckAmount(c.Amount); err != nil {
		return fmt.Errorf("coin %s: %w", c, err)
	}
	return nil
}

// NewCoin builds a coin from an integer amount.
func NewCoin(amount int64, denom string) Coin {
	return Coin{Denom: denom, Amount: NewDec(amount)}
}

// String renders the coin as "<amount><denom>", e.g. "1000uatom".
func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

var coinPattern = regexp.MustCompile(`^([0-9]+)([a-zA-Z][a-zA-Z0-9/:._-]*)$`)

// ParseCoin parses "<amount><denom>".
func ParseCoin(s string) (Coin, error) {
	m := coinPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Coin{}, fmt.Errorf("invalid coin %q: expected <amount><denom>", s)
	}
	amount, err := ParseDec(m[1])
	if err != nil {
		return Coin{}, fmt.Errorf("invalid coin %q: %w", s, err)
	}
	return Coin{Denom: m[2], Amount: amount}, nil
}

// ParseCoins parses a comma-separated coin list. Empty input yields nil.
func ParseCoins(s string) (Coins, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var coins Coins
	for _, part := range strings.Split(s, ",") {
		c, err := ParseCoin(part)
		if err != nil {
			return nil, err
		}
		coins = append(coins, c)
	}
	return coins, nil
}

// Coins is a list of coins. Normalized lists are sorted by denom, hold at
// most one entry per denom, and carry no zero amounts.
type Coins []Coin

// Normalize merges duplicate denoms, drops zero amounts, and sorts.
func (cs Coins) Normalize() Coins {
	merged := make(map[string]Dec, len(cs))
	for _, c := range cs {
		merged[c.Denom] = merged[c.Denom].Add(c.Amount)
	}
	out := make(Coins, 0, len(merged))
	for denom, amount := range merged {
		if amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	slices.SortFunc(out, func(a, b Coin) int { return strings.Compare(a.Denom, b.Denom) })
	return out
}

// AmountOf returns the total amount of denom, zero if absent.
func (cs Coins) AmountOf(denom string) Dec {
	var total Dec
	for _, c := range cs {
		if c.Denom == denom {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// Add returns the normalized sum of cs and c.
func (cs Coins) Add(c ...Coin) Coins {
	all := make(Coins, 0, len(cs)+len(c))
	all = append(all, cs...)
	all = append(all, c...)
	return all.Normalize()
}

// Sub returns cs minus c. It fails if cs holds less than c of that denom.
func (cs Coins) Sub(c Coin) (Coins, error) {
	have := cs.AmountOf(c.Denom)
	if have.Cmp(c.Amount) < 0 {
		return nil, fmt.Errorf("insufficient %s: have %s, need %s", c.Denom, have, c.Amount)
	}
	out := make(Coins, 0, len(cs))
	for _, existing := range cs.Normalize() {
		if existing.Denom == c.Denom {
			existing.Amount = existing.Amount.Sub(c.Amount)
		}
		out = append(out, existing)
	}
	return out.Normalize(), nil
}

// Validate checks every coin.
func (cs Coins) Validate() error {
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsZero reports whether every amount is zero.
func (cs Coins) IsZero() bool {
	for _, c := range cs {
		if !c.Amount.IsZero() {
			return false
		}
	}
	return true
}

// String renders a comma-separated list.
func (cs Coins) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// DenomSet is an unordered set of denominations.
type DenomSet map[string]struct{}

// NewDenomSet builds a set from the given denoms.
func NewDenomSet(denoms ...string) DenomSet {
	s := make(DenomSet, len(denoms))
	for _, d := range denoms {
		s[d] = struct{}{}
	}
	return s
}

// Has reports whether denom is in the set.
func (s DenomSet) Has(denom string) bool {
	_, ok := s[denom]
	return ok
}

// Merge adds every denom of other to s.
func (s DenomSet) Merge(other DenomSet) {
	for d := range other {
		s[d] = struct{}{}
	}
}

// Sorted returns the denoms in lexical order.
func (s DenomSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// MarshalJSON encodes the set as a sorted list.
func (s DenomSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a list of denoms.
func (s *DenomSet) UnmarshalJSON(data []byte) error {
	var denoms []string
	if err := json.Unmarshal(data, &denoms); err != nil {
		return err
	}
	*s = NewDenomSet(denoms...)
	return nil
}
