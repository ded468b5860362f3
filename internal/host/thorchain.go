package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// thorParams configures the deposit module.
type thorParams struct {
	feeBps      uint64
	minAmountIn ir.Dec
}

func defaultThorParams() thorParams {
	return thorParams{feeBps: 30, minAmountIn: ir.NewDec(0)}
}

const bpsDenominator = 10_000

// thorOut prices a cross-chain swap from oracle prices, net of the module
// fee and any affiliate fee.
func (p thorParams) thorOut(ctx context.Context, tx *store.Tx, from, to string, amount ir.Dec, affiliateBps uint64) (ir.Dec, error) {
	if p.feeBps+affiliateBps >= bpsDenominator {
		return ir.Dec{}, fmt.Errorf("fees of %d bps leave nothing to swap", p.feeBps+affiliateBps)
	}
	pf, err := tx.OraclePrice(ctx, from)
	if err != nil {
		return ir.Dec{}, fmt.Errorf("thorchain pool %s: %w", from, err)
	}
	pt, err := tx.OraclePrice(ctx, to)
	if err != nil {
		return ir.Dec{}, fmt.Errorf("thorchain pool %s: %w", to, err)
	}
	gross, err := amount.Mul(pf).Quo(pt)
	if err != nil {
		return ir.Dec{}, err
	}
	net := ir.NewDec(int64(bpsDenominator - p.feeBps - affiliateBps))
	out, err := gross.Mul(net).Quo(ir.NewDec(bpsDenominator))
	if err != nil {
		return ir.Dec{}, err
	}
	return out.Floor(), nil
}

// quote answers a ThorQuoteRequest.
func (p thorParams) quote(ctx context.Context, tx *store.Tx, req ir.ThorQuoteRequest) (ir.ThorQuote, error) {
	if req.Amount.IsZero() {
		return ir.ThorQuote{}, fmt.Errorf("thorchain quote: amount must be positive")
	}
	out, err := p.thorOut(ctx, tx, req.FromAsset, req.ToAsset, req.Amount, req.AffiliateBps)
	if err != nil {
		return ir.ThorQuote{}, err
	}
	quantity := max(req.StreamingQuantity, 1)
	return ir.ThorQuote{
		ExpectedAmountOut:      out,
		SlippageBps:            p.feeBps,
		RecommendedMinAmountIn: p.minAmountIn,
		StreamingSwapBlocks:    req.StreamingInterval * (quantity - 1),
		Memo:                   swapMemo(req, out),
	}, nil
}

// swapMemo renders "=:ASSET:DEST:LIMIT/INTERVAL/QUANTITY[:CODE:BPS]".
func swapMemo(req ir.ThorQuoteRequest, limit ir.Dec) string {
	memo := fmt.Sprintf("=:%s:%s:%s/%d/%d",
		req.ToAsset, req.Destination, limit, req.StreamingInterval, req.StreamingQuantity)
	if req.AffiliateCode != "" {
		memo += fmt.Sprintf(":%s:%d", req.AffiliateCode, req.AffiliateBps)
	}
	return memo
}

// swapInstruction is a parsed swap memo.
type swapInstruction struct {
	asset        string
	destination  string
	limit        ir.Dec
	affiliate    string
	affiliateBps uint64
}

// parseSwapMemo parses a swap memo. ok is false when the memo is not a
// swap.
func parseSwapMemo(memo string) (swapInstruction, bool, error) {
	fields := strings.Split(memo, ":")
	if len(fields) == 0 || (fields[0] != "=" && !strings.EqualFold(fields[0], "swap")) {
		return swapInstruction{}, false, nil
	}
	if len(fields) != 4 && len(fields) != 6 {
		return swapInstruction{}, true, fmt.Errorf("swap memo %q: want 4 or 6 fields, got %d", memo, len(fields))
	}
	in := swapInstruction{asset: fields[1], destination: fields[2]}
	if in.asset == "" || in.destination == "" {
		return swapInstruction{}, true, fmt.Errorf("swap memo %q: asset and destination are required", memo)
	}
	limit, _, _ := strings.Cut(fields[3], "/")
	if limit == "" {
		in.limit = ir.NewDec(0)
	} else {
		d, err := ir.ParseDec(limit)
		if err != nil {
			return swapInstruction{}, true, fmt.Errorf("swap memo %q: limit: %w", memo, err)
		}
		in.limit = d
	}
	if len(fields) == 6 {
		bps, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			return swapInstruction{}, true, fmt.Errorf("swap memo %q: affiliate bps: %w", memo, err)
		}
		in.affiliate, in.affiliateBps = fields[4], bps
	}
	return in, true, nil
}

// deposit hands coins to the deposit module. A swap memo settles at once:
// the output is minted to the destination, or the deposit is refunded when
// it falls short of the memo's limit. Any other memo burns the coins.
func (r *txRun) deposit(ctx context.Context, sender string, d ir.Deposit) ([]ir.Event, error) {
	if err := burn(ctx, r.tx, sender, d.Coins); err != nil {
		return nil, err
	}
	in, isSwap, err := parseSwapMemo(d.Memo)
	if err != nil {
		return nil, err
	}
	if !isSwap {
		return []ir.Event{ir.NewEvent("deposit",
			"memo", d.Memo,
			"coins", d.Coins.String(),
			"outcome", "burned",
		)}, nil
	}
	if len(d.Coins) != 1 {
		return nil, fmt.Errorf("swap deposit needs exactly one coin, got %q", d.Coins.String())
	}
	from, err := ir.ThorAsset(d.Coins[0].Denom)
	if err != nil {
		return nil, err
	}
	out, err := r.chain.thor.thorOut(ctx, r.tx, from, in.asset, d.Coins[0].Amount, in.affiliateBps)
	if err != nil {
		return nil, err
	}

	if out.Cmp(in.limit) < 0 {
		if err := mint(ctx, r.tx, sender, d.Coins); err != nil {
			return nil, err
		}
		return []ir.Event{ir.NewEvent("deposit",
			"memo", d.Memo,
			"coins", d.Coins.String(),
			"outcome", "refunded",
		)}, nil
	}
	received := ir.Coin{Denom: ir.DenomOfThorAsset(in.asset), Amount: out}
	if err := mint(ctx, r.tx, in.destination, ir.Coins{received}); err != nil {
		return nil, err
	}
	return []ir.Event{ir.NewEvent("deposit",
		"memo", d.Memo,
		"coins", d.Coins.String(),
		"outcome", "swapped",
		"received", received.String(),
		"destination", in.destination,
	)}, nil
}
