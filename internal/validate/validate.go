// Package validate implements spec.md §4.6: the decision lifecycle
// checks, the LMSR value-conservation check, and the block-level
// double-spend and coinbase-fee checks. Transaction never mutates the
// store; Body runs entirely under one read transaction.
package validate

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/deltas"
	"github.com/nchashch/hivemind-state/internal/fill"
	"github.com/nchashch/hivemind-state/internal/lmsr"
	"github.com/nchashch/hivemind-state/internal/stateerr"
	"github.com/nchashch/hivemind-state/internal/store"
)

// Reader is the read surface Transaction needs: everything
// deltas.Accumulate needs, plus the persisted market vector a cost
// computation reads state from.
type Reader interface {
	deltas.Reader
	GetVector(op content.OutPoint) ([]*apd.Decimal, bool, error)
}

// Transaction runs spec.md §4.6 step 1-5 against a filled transaction
// at the given block height and returns its fee.
func Transaction(ctx *apd.Context, r Reader, ft content.FilledTransaction, height uint32) (uint64, error) {
	resolvedInTx := make(map[content.OutPoint]bool)
	var spentDecisions []content.OutPoint

	for i, spent := range ft.SpentUTXOs {
		switch c := spent.Content.(type) {
		case content.Decision:
			if height < c.ResolvableHeight {
				return 0, stateerr.New(stateerr.DecisionSpentEarly, "validate: input %d spent before resolvable height %d", i, c.ResolvableHeight).WithOutPoint(ft.Transaction.Inputs[i])
			}
			spentDecisions = append(spentDecisions, ft.Transaction.Inputs[i])
		case content.Resolution:
			resolvedInTx[c.Decision] = true
		case content.Market:
			// A live market is never consumed except through the
			// resolution pathway, which updates markets[M] in place
			// rather than spending its outpoint.
			return 0, stateerr.New(stateerr.InvalidOutPoint, "validate: input %d spends a market outside the resolution pathway", i).WithOutPoint(ft.Transaction.Inputs[i])
		}
	}
	for _, out := range ft.Transaction.Outputs {
		if c, ok := out.Content.(content.Resolution); ok {
			resolvedInTx[c.Decision] = true
		}
	}
	for _, decOp := range spentDecisions {
		if !resolvedInTx[decOp] {
			return 0, stateerr.New(stateerr.DecisionSpentWithoutResolution, "validate: decision spent without a matching resolution in the same transaction").WithOutPoint(decOp)
		}
	}

	for _, out := range ft.Transaction.Outputs {
		if c, ok := out.Content.(content.Market); ok {
			if err := requireDecisionsNotResolvable(r, c.Decisions, height); err != nil {
				return 0, err
			}
		}
	}

	result, err := deltas.Accumulate(ctx, r, ft)
	if err != nil {
		return 0, err
	}

	cost := apd.New(0, 0)
	for market, delta := range result.MarketDeltas {
		state, ok, err := r.GetVector(market)
		if err != nil {
			return 0, stateerr.Wrap(stateerr.Store, err, "validate: loading vector").WithOutPoint(market)
		}
		if !ok {
			return 0, stateerr.New(stateerr.NoUtxo, "validate: vector not found").WithOutPoint(market)
		}
		rec, ok, err := r.GetMarket(market)
		if err != nil {
			return 0, stateerr.Wrap(stateerr.Store, err, "validate: loading market").WithOutPoint(market)
		}
		if !ok {
			return 0, stateerr.New(stateerr.NoUtxo, "validate: market not found").WithOutPoint(market)
		}
		marginal, err := lmsr.MarginalCost(ctx, lmsr.DecimalFromUint64(rec.B), state, delta)
		if err != nil {
			return 0, stateerr.Wrap(stateerr.Store, err, "validate: marginal cost").WithOutPoint(market)
		}
		if _, err := ctx.Add(cost, cost, marginal); err != nil {
			return 0, stateerr.Wrap(stateerr.Store, err, "validate: accumulate cost")
		}
	}

	lhs := new(apd.Decimal)
	if _, err := ctx.Add(lhs, cost, lmsr.DecimalFromUint64(result.OutputValue)); err != nil {
		return 0, stateerr.Wrap(stateerr.Store, err, "validate: cost+output_value")
	}
	if lhs.Cmp(lmsr.DecimalFromUint64(result.InputValue)) > 0 {
		return 0, stateerr.New(stateerr.NotEnoughValueIn, "validate: cost %s plus output_value %d exceeds input_value %d", cost.String(), result.OutputValue, result.InputValue)
	}

	costU64, err := lmsr.ToU64(ctx, cost)
	if err != nil {
		return 0, stateerr.New(stateerr.U64Overflow, "validate: cost %s does not convert to u64: %v", cost.String(), err)
	}
	if costU64 > result.InputValue+result.OutputValue {
		return 0, stateerr.New(stateerr.U64Overflow, "validate: cost %d exceeds input_value+output_value", costU64)
	}
	return result.InputValue + result.OutputValue - costU64, nil
}

func requireDecisionsNotResolvable(r Reader, decisions []content.OutPoint, height uint32) error {
	for i, decOp := range decisions {
		out, ok, err := r.GetUTXO(decOp)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "validate: loading decision %d", i).WithOutPoint(decOp)
		}
		if !ok {
			return stateerr.New(stateerr.NoUtxo, "validate: decision %d not found", i).WithOutPoint(decOp)
		}
		dec, ok := out.Content.(content.Decision)
		if !ok {
			return stateerr.New(stateerr.InvalidOutPoint, "validate: decision %d is not a Decision", i).WithOutPoint(decOp)
		}
		if height > dec.ResolvableHeight {
			return stateerr.New(stateerr.MarketUsingResolvableDecision, "validate: decision %d is already resolvable at height %d", i, height).WithOutPoint(decOp)
		}
	}
	return nil
}

// Body validates every transaction in B against one snapshot read
// transaction, rejecting the first double-spent input or invalid
// transaction, then requires coinbase_value <= sum of fees.
func Body(ctx *apd.Context, sugar *zap.SugaredLogger, rtx *store.ReadTx, body content.Body, height uint32) error {
	passID := uuid.NewString()
	spent := make(map[content.OutPoint]bool)
	var totalFee uint64

	for ti, tx := range body.Transactions {
		for _, op := range tx.Inputs {
			if spent[op] {
				err := stateerr.New(stateerr.UtxoDoubleSpent, "validate: transaction %d double-spends an input already used in this block", ti).WithOutPoint(op)
				logRejected(sugar, passID, err)
				return err
			}
			spent[op] = true
		}

		ft, err := fill.Transaction(rtx, tx)
		if err != nil {
			logRejected(sugar, passID, err)
			return err
		}
		fee, err := Transaction(ctx, rtx, ft, height)
		if err != nil {
			logRejected(sugar, passID, err)
			return err
		}
		totalFee += fee
	}

	var coinbaseValue uint64
	for _, out := range body.Coinbase {
		coinbaseValue += out.GetValue()
	}
	if coinbaseValue > totalFee {
		err := stateerr.New(stateerr.NotEnoughFeeValue, "validate: coinbase value %d exceeds block fee total %d", coinbaseValue, totalFee)
		logRejected(sugar, passID, err)
		return err
	}

	sugar.Infow("block_validated", "pass_id", passID, "fee_total", totalFee, "tx_count", len(body.Transactions))
	return nil
}

func logRejected(sugar *zap.SugaredLogger, passID string, err error) {
	if se, ok := err.(*stateerr.Error); ok {
		sugar.Warnw("block_rejected", "pass_id", passID, "kind", se.Kind().String(), "error", se.Error())
		return
	}
	sugar.Warnw("block_rejected", "pass_id", passID, "error", err.Error())
}
