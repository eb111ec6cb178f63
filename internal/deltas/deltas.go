// Package deltas walks a filled transaction once and produces the
// per-market share-vector deltas together with the summed input and
// output values (including the implicit market-funding charge on newly
// created markets), per spec.md §4.5.
package deltas

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/lmsr"
	"github.com/nchashch/hivemind-state/internal/stateerr"
)

// Reader is the read surface Accumulate needs: resolving a market's
// persisted shape (to place a position delta) and resolving an
// arbitrary outpoint's content (to read a decision's outcome count
// when a transaction creates a new market). Both *store.ReadTx and
// *store.WriteTx satisfy this.
type Reader interface {
	GetMarket(op content.OutPoint) (content.MarketRecord, bool, error)
	GetUTXO(op content.OutPoint) (content.Output, bool, error)
}

// Result is the per-transaction output of Accumulate.
type Result struct {
	MarketDeltas map[content.OutPoint][]*apd.Decimal
	InputValue   uint64
	OutputValue  uint64
}

// FlatIndex encodes a share coordinate into [0, size) using row-major
// mixed-radix order: step starts at size = ∏ shape and is divided down
// axis by axis, matching spec.md §4.5's definition exactly.
func FlatIndex(share, shape []uint32) (uint64, error) {
	if len(share) != len(shape) {
		return 0, stateerr.New(stateerr.InvalidOutPoint, "flat_index: share length %d != shape length %d", len(share), len(shape))
	}
	step := uint64(1)
	for _, d := range shape {
		step *= uint64(d)
	}
	idx := uint64(0)
	for i, s := range share {
		dim := shape[i]
		if s >= dim {
			return 0, stateerr.New(stateerr.InvalidOutPoint, "flat_index: share[%d]=%d out of range for shape[%d]=%d", i, s, i, dim)
		}
		step /= uint64(dim)
		idx += uint64(s) * step
	}
	return idx, nil
}

// Accumulate walks ft.SpentUTXOs then ft.Transaction.Outputs exactly
// once, producing the market deltas and value sums spec.md §4.5
// defines. Deltas are allocated lazily as zero vectors sized by each
// touched market's persisted shape.
func Accumulate(ctx *apd.Context, r Reader, ft content.FilledTransaction) (Result, error) {
	acc := &accumulator{ctx: ctx, r: r, deltas: make(map[content.OutPoint][]*apd.Decimal), shapes: make(map[content.OutPoint][]uint32)}

	var inputValue, outputValue uint64

	for i, spent := range ft.SpentUTXOs {
		inputValue += spent.GetValue()
		if pos, ok := spent.Content.(content.Position); ok {
			if err := acc.applyPositionDelta(pos, false); err != nil {
				return Result{}, wrapf(err, "deltas: input %d", i)
			}
		}
	}

	for i, out := range ft.Transaction.Outputs {
		outputValue += out.GetValue()
		switch c := out.Content.(type) {
		case content.Position:
			if err := acc.applyPositionDelta(c, true); err != nil {
				return Result{}, wrapf(err, "deltas: output %d", i)
			}
		case content.Market:
			charge, err := acc.fundingCharge(c)
			if err != nil {
				return Result{}, wrapf(err, "deltas: output %d market funding", i)
			}
			outputValue += charge
		}
	}

	return Result{MarketDeltas: acc.deltas, InputValue: inputValue, OutputValue: outputValue}, nil
}

type accumulator struct {
	ctx    *apd.Context
	r      Reader
	deltas map[content.OutPoint][]*apd.Decimal
	shapes map[content.OutPoint][]uint32
}

func (a *accumulator) vectorFor(market content.OutPoint) ([]*apd.Decimal, []uint32, error) {
	if vec, ok := a.deltas[market]; ok {
		return vec, a.shapes[market], nil
	}
	rec, ok, err := a.r.GetMarket(market)
	if err != nil {
		return nil, nil, stateerr.Wrap(stateerr.Store, err, "deltas: loading market").WithOutPoint(market)
	}
	if !ok {
		return nil, nil, stateerr.New(stateerr.NoUtxo, "deltas: market not found").WithOutPoint(market)
	}
	vec := make([]*apd.Decimal, rec.Size())
	for i := range vec {
		vec[i] = apd.New(0, 0)
	}
	a.deltas[market] = vec
	a.shapes[market] = rec.Shape
	return vec, rec.Shape, nil
}

func (a *accumulator) applyPositionDelta(pos content.Position, positive bool) error {
	vec, shape, err := a.vectorFor(pos.Market)
	if err != nil {
		return err
	}
	idx, err := FlatIndex(pos.Share, shape)
	if err != nil {
		return err
	}
	amount := lmsr.DecimalFromUint64(pos.Value)
	if positive {
		if _, err := a.ctx.Add(vec[idx], vec[idx], amount); err != nil {
			return stateerr.Wrap(stateerr.Store, err, "deltas: accumulate position delta")
		}
	} else {
		if _, err := a.ctx.Sub(vec[idx], vec[idx], amount); err != nil {
			return stateerr.Wrap(stateerr.Store, err, "deltas: accumulate position delta")
		}
	}
	return nil
}

// fundingCharge resolves a newly created market's referenced decisions
// to their outcome counts, computes size = ∏ decisions[i].size, and
// returns the one-time creation charge b*ln(size), rounded up (the
// creator must fund at least the worst-case solvency cap).
func (a *accumulator) fundingCharge(m content.Market) (uint64, error) {
	size := uint64(1)
	for i, decOp := range m.Decisions {
		decOut, ok, err := a.r.GetUTXO(decOp)
		if err != nil {
			return 0, stateerr.Wrap(stateerr.Store, err, "deltas: loading decision %d", i).WithOutPoint(decOp)
		}
		if !ok {
			return 0, stateerr.New(stateerr.NoUtxo, "deltas: decision %d not found", i).WithOutPoint(decOp)
		}
		dec, ok := decOut.Content.(content.Decision)
		if !ok {
			return 0, stateerr.New(stateerr.InvalidOutPoint, "deltas: decision %d is not a Decision", i).WithOutPoint(decOp)
		}
		size *= uint64(dec.Size)
	}

	b := lmsr.DecimalFromUint64(m.B)
	cost, err := lmsr.FundingCost(a.ctx, b, size)
	if err != nil {
		return 0, stateerr.New(stateerr.U64Overflow, "deltas: funding cost: %v", err)
	}
	charge, err := lmsr.ToU64Ceil(a.ctx, cost)
	if err != nil {
		return 0, stateerr.New(stateerr.U64Overflow, "deltas: funding charge does not fit u64: %v", err)
	}
	return charge, nil
}

func wrapf(err error, format string, args ...any) error {
	if se, ok := err.(*stateerr.Error); ok {
		return se
	}
	return stateerr.Wrap(stateerr.Store, err, format, args...)
}
