package ir

import (
	"fmt"
	"strings"
)

// PairConfig describes an order-book pair contract.
// Prices on the pair are quoted in Quote per unit of Base.
type PairConfig struct {
	Address string `json:"address" yaml:"address"`
	Base    string `json:"base" yaml:"base"`
	Quote   string `json:"quote" yaml:"quote"`
}

// Has reports whether denom is one of the pair's denoms.
func (p PairConfig) Has(denom string) bool {
	return denom == p.Base || denom == p.Quote
}

// OfferDenom is the denom an order on side offers.
func (p PairConfig) OfferDenom(side Side) string {
	if side == SideBase {
		return p.Base
	}
	return p.Quote
}

// AskDenom is the denom an order on side receives when filled.
func (p PairConfig) AskDenom(side Side) string {
	if side == SideBase {
		return p.Quote
	}
	return p.Base
}

// SideOf returns the side whose orders offer denom.
func (p PairConfig) SideOf(denom string) Side {
	if denom == p.Base {
		return SideBase
	}
	return SideQuote
}

// BookEntry is one price level of a book.
type BookEntry struct {
	Price Dec `json:"price" yaml:"price"`
	Total Dec `json:"total" yaml:"total"`
}

// Book is the resting liquidity of a pair, best price first on each side.
// Base entries offer base (asks); quote entries offer quote (bids).
type Book struct {
	Base  []BookEntry `json:"base" yaml:"base"`
	Quote []BookEntry `json:"quote" yaml:"quote"`
}

// Side returns the entries of side.
func (b Book) Side(side Side) []BookEntry {
	if side == SideBase {
		return b.Base
	}
	return b.Quote
}

// OrderState is a resting order as the pair reports it.
type OrderState struct {
	Owner     string `json:"owner"`
	Side      Side   `json:"side"`
	Price     Dec    `json:"price"`
	Offer     Dec    `json:"offer"`
	Remaining Dec    `json:"remaining"`
	Filled    Dec    `json:"filled"`
}

// StrategyInfo is the registry's entry for a strategy.
type StrategyInfo struct {
	Address string         `json:"address"`
	Owner   string         `json:"owner"`
	Label   string         `json:"label"`
	Status  StrategyStatus `json:"status"`
}

// ThorQuoteRequest asks for a cross-chain swap quote.
type ThorQuoteRequest struct {
	FromAsset         string
	ToAsset           string
	Amount            Dec
	StreamingInterval uint64
	StreamingQuantity uint64
	Destination       string
	AffiliateCode     string
	AffiliateBps      uint64
}

// ThorQuote is the answer to a ThorQuoteRequest.
type ThorQuote struct {
	ExpectedAmountOut      Dec    `json:"expected_amount_out"`
	SlippageBps            uint64 `json:"slippage_bps"`
	RecommendedMinAmountIn Dec    `json:"recommended_min_amount_in"`
	StreamingSwapBlocks    uint64 `json:"streaming_swap_blocks"`
	Memo                   string `json:"memo"`
}

// ThorAsset maps a native denom to its layer-1 asset name. Any rune denom
// is THOR.RUNE; otherwise "btc-btc" becomes "BTC.BTC".
func ThorAsset(denom string) (string, error) {
	if strings.Contains(denom, "rune") {
		return "THOR.RUNE", nil
	}
	chain, symbol, ok := strings.Cut(denom, "-")
	if !ok || chain == "" || symbol == "" {
		return "", fmt.Errorf("invalid layer 1 asset: %s", denom)
	}
	return strings.ToUpper(chain) + "." + strings.ToUpper(symbol), nil
}

// DenomOfThorAsset is the inverse of ThorAsset.
func DenomOfThorAsset(asset string) string {
	if asset == "THOR.RUNE" {
		return "rune"
	}
	return strings.ToLower(strings.Replace(asset, ".", "-", 1))
}
