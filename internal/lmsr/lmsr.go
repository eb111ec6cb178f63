// Package lmsr implements the fixed-point Logarithmic Market Scoring
// Rule cost function and market funding cost used to price every
// combinatorial market in the state engine. All arithmetic runs on
// github.com/cockroachdb/apd/v3, an arbitrary-precision decimal type
// with its own deterministic Exp/Ln — never binary floating point —
// so that every node computes bit-identical costs from the same
// inputs. The precision and rounding mode below are pinned as part of
// consensus: changing either changes the chain's validation rules.
package lmsr

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Precision is the number of significant decimal digits carried through
// every Exp/Ln/Mul/Add in the cost kernel. 40 digits comfortably covers
// MaxMoney-scaled arguments without losing precision in the log-sum-exp
// reduction.
const Precision = 40

// MaxMoney is 21,000,000 * 10^8, the supply upper bound spec.md uses to
// rescale the LMSR argument so exp() never overflows for realistic
// state vectors.
var MaxMoney = apd.New(2_100_000_000_000_000, 0)

// ErrInvalidLiquidity is returned when b <= 0.
var ErrInvalidLiquidity = errors.New("lmsr: liquidity parameter b must be positive")

// ErrOverflow is returned by ToU64 when a cost is negative or exceeds
// the range of a uint64.
var ErrOverflow = errors.New("lmsr: decimal cost does not fit u64")

// NewContext returns the pinned apd.Context every lmsr computation
// must use. Callers should construct exactly one and thread it through
// a validation pass; constructing a fresh context per call is fine too
// since it is a pure value, but reusing one avoids repeated allocation.
func NewContext() *apd.Context {
	return apd.BaseContext.WithPrecision(Precision)
}

// DecimalFromUint64 lifts a u64 money amount into the decimal domain.
// Every amount in this engine is bounded by MaxMoney (2.1e15), far
// below the int64 range apd.New's coefficient accepts.
func DecimalFromUint64(v uint64) *apd.Decimal {
	return apd.New(int64(v), 0)
}

// Cost computes C(b, q) = b*MaxMoney * ln( Σ_i exp( q_i / (b*MaxMoney) ) )
// using the log-sum-exp trick for numerical stability: letting
// scale = b*MaxMoney and x_i = q_i/scale,
//
//	ln(Σ exp(x_i)) = max(x) + ln(Σ exp(x_i - max(x)))
//
// so every exp() argument is <= 0 and cannot overflow.
func Cost(ctx *apd.Context, b *apd.Decimal, q []*apd.Decimal) (*apd.Decimal, error) {
	if b.Sign() <= 0 {
		return nil, ErrInvalidLiquidity
	}
	if len(q) == 0 {
		return nil, errors.New("lmsr: empty state vector")
	}

	scale := new(apd.Decimal)
	if _, err := ctx.Mul(scale, b, MaxMoney); err != nil {
		return nil, fmt.Errorf("lmsr: scale: %w", err)
	}

	xs := make([]*apd.Decimal, len(q))
	var maxX *apd.Decimal
	for i, qi := range q {
		x := new(apd.Decimal)
		if _, err := ctx.Quo(x, qi, scale); err != nil {
			return nil, fmt.Errorf("lmsr: q[%d]/scale: %w", i, err)
		}
		xs[i] = x
		if maxX == nil || x.Cmp(maxX) > 0 {
			maxX = x
		}
	}

	sum := new(apd.Decimal)
	for i, x := range xs {
		diff := new(apd.Decimal)
		if _, err := ctx.Sub(diff, x, maxX); err != nil {
			return nil, fmt.Errorf("lmsr: x[%d]-max: %w", i, err)
		}
		e := new(apd.Decimal)
		if _, err := ctx.Exp(e, diff); err != nil {
			return nil, fmt.Errorf("lmsr: exp(x[%d]-max): %w", i, err)
		}
		if _, err := ctx.Add(sum, sum, e); err != nil {
			return nil, fmt.Errorf("lmsr: accumulate exp: %w", err)
		}
	}

	lse := new(apd.Decimal)
	if _, err := ctx.Ln(lse, sum); err != nil {
		return nil, fmt.Errorf("lmsr: ln(sum): %w", err)
	}
	if _, err := ctx.Add(lse, lse, maxX); err != nil {
		return nil, fmt.Errorf("lmsr: lse+max: %w", err)
	}

	cost := new(apd.Decimal)
	if _, err := ctx.Mul(cost, scale, lse); err != nil {
		return nil, fmt.Errorf("lmsr: scale*lse: %w", err)
	}
	return cost, nil
}

// MarginalCost returns C(b, state+delta) - C(b, state); it may be
// negative (a net share sale).
func MarginalCost(ctx *apd.Context, b *apd.Decimal, state, delta []*apd.Decimal) (*apd.Decimal, error) {
	if len(state) != len(delta) {
		return nil, fmt.Errorf("lmsr: state and delta length mismatch: %d != %d", len(state), len(delta))
	}
	after := make([]*apd.Decimal, len(state))
	for i := range state {
		sum := new(apd.Decimal)
		if _, err := ctx.Add(sum, state[i], delta[i]); err != nil {
			return nil, fmt.Errorf("lmsr: state+delta[%d]: %w", i, err)
		}
		after[i] = sum
	}

	before, err := Cost(ctx, b, state)
	if err != nil {
		return nil, err
	}
	costAfter, err := Cost(ctx, b, after)
	if err != nil {
		return nil, err
	}

	delta2 := new(apd.Decimal)
	if _, err := ctx.Sub(delta2, costAfter, before); err != nil {
		return nil, fmt.Errorf("lmsr: costAfter-before: %w", err)
	}
	return delta2, nil
}

// FundingCost computes the one-time market creation charge b*ln(size):
// the worst-case LMSR payout for a market seeded at zero, which the
// creator must fund up front (the standard LMSR solvency bound).
func FundingCost(ctx *apd.Context, b *apd.Decimal, size uint64) (*apd.Decimal, error) {
	if b.Sign() <= 0 {
		return nil, ErrInvalidLiquidity
	}
	if size < 2 {
		return nil, fmt.Errorf("lmsr: market size must be >= 2, got %d", size)
	}
	sizeDec := DecimalFromUint64(size)
	ln := new(apd.Decimal)
	if _, err := ctx.Ln(ln, sizeDec); err != nil {
		return nil, fmt.Errorf("lmsr: ln(size): %w", err)
	}
	cost := new(apd.Decimal)
	if _, err := ctx.Mul(cost, b, ln); err != nil {
		return nil, fmt.Errorf("lmsr: b*ln(size): %w", err)
	}
	return cost, nil
}

// ToU64 rounds a decimal cost to the nearest integer (ties to even,
// matching ctx's rounding mode) and converts it to a uint64. It fails
// with ErrOverflow if the value is negative or does not fit.
func ToU64(ctx *apd.Context, d *apd.Decimal) (uint64, error) {
	return roundToU64(ctx, d, ctx.Rounding)
}

// ToU64Ceil rounds a decimal cost UP to the next integer before
// converting: used for the market funding charge, where the creator
// must fund at least the worst-case cap, not a rounded-down
// approximation of it.
func ToU64Ceil(ctx *apd.Context, d *apd.Decimal) (uint64, error) {
	return roundToU64(ctx, d, apd.RoundCeiling)
}

func roundToU64(ctx *apd.Context, d *apd.Decimal, rounding apd.Rounder) (uint64, error) {
	rctx := ctx.WithPrecision(ctx.Precision)
	rctx.Rounding = rounding
	rounded := new(apd.Decimal)
	if _, err := rctx.RoundToIntegralValue(rounded, d); err != nil {
		return 0, fmt.Errorf("%w: round: %v", ErrOverflow, err)
	}
	if rounded.Sign() < 0 {
		return 0, ErrOverflow
	}
	i, err := rounded.Int64()
	if err != nil || i < 0 {
		return 0, ErrOverflow
	}
	return uint64(i), nil
}
