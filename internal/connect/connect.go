// Package connect implements spec.md §4.7: applying an already
// validated block body to the store under a single write transaction.
// Nothing here re-checks the rules validate already enforced; connect
// assumes the body passed validate.Body at the same height.
package connect

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/deltas"
	"github.com/nchashch/hivemind-state/internal/fill"
	"github.com/nchashch/hivemind-state/internal/stateerr"
	"github.com/nchashch/hivemind-state/internal/store"
)

// Body applies body to s in one write transaction: deletes spent
// inputs and their index bookkeeping, inserts new outputs (maintaining
// the market/position indexes), applies the block's accumulated market
// deltas, then resolves any market whose decisions are now all
// answered. The whole block is atomic: any error aborts before Commit,
// leaving the store untouched.
func Body(s *store.Store, ctx *apd.Context, sugar *zap.SugaredLogger, body content.Body) error {
	wtx, err := s.BeginWrite()
	if err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: begin write transaction")
	}
	committed := false
	defer func() {
		if !committed {
			wtx.Close()
		}
	}()

	bodyDelta := make(map[content.OutPoint][]*apd.Decimal)
	decisionOutcomes := make(map[content.OutPoint]uint32)

	for ti, tx := range body.Transactions {
		ft, err := fill.Transaction(wtx, tx)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: transaction %d: refill", ti)
		}

		if err := applyInputs(wtx, ft); err != nil {
			return err
		}

		txid := content.TransactionID(tx)
		if err := applyOutputs(wtx, txid, tx.Outputs, decisionOutcomes); err != nil {
			return err
		}

		result, err := deltas.Accumulate(ctx, wtx, ft)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: transaction %d: accumulate deltas", ti)
		}
		for market, delta := range result.MarketDeltas {
			if err := mergeDelta(ctx, bodyDelta, market, delta); err != nil {
				return err
			}
		}
	}

	if err := applyMarketDeltas(ctx, wtx, bodyDelta); err != nil {
		return err
	}

	if err := resolveMarkets(wtx, decisionOutcomes); err != nil {
		return err
	}

	if err := wtx.Commit(); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: commit")
	}
	committed = true

	sugar.Infow("block_connected", "tx_count", len(body.Transactions), "markets_touched", len(bodyDelta))
	return nil
}

// applyInputs deletes every spent input from utxos and, for a spent
// Position, removes it from market_to_positions[market] — the
// full-table cleanup spec.md §9 flags as missing in the source.
func applyInputs(wtx *store.WriteTx, ft content.FilledTransaction) error {
	for i, op := range ft.Transaction.Inputs {
		if err := wtx.DeleteUTXO(op); err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: delete input %d", i).WithOutPoint(op)
		}
		if pos, ok := ft.SpentUTXOs[i].Content.(content.Position); ok {
			if err := removePosition(wtx, pos.Market, op); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOutputs(wtx *store.WriteTx, txid common.Hash, outputs []content.Output, decisionOutcomes map[content.OutPoint]uint32) error {
	for vout, out := range outputs {
		op := content.OutPoint{Kind: content.OutPointRegular, Txid: txid, Vout: uint32(vout)}
		if err := wtx.PutUTXO(op, out); err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: put output %d", vout).WithOutPoint(op)
		}

		switch c := out.Content.(type) {
		case content.Position:
			if _, ok, err := wtx.GetMarket(c.Market); err != nil {
				return stateerr.Wrap(stateerr.Store, err, "connect: loading market for position output %d", vout).WithOutPoint(c.Market)
			} else if !ok {
				return stateerr.New(stateerr.NoUtxo, "connect: position output %d references unknown market", vout).WithOutPoint(c.Market)
			}
			if err := appendPosition(wtx, c.Market, op); err != nil {
				return err
			}
		case content.Resolution:
			decisionOutcomes[c.Decision] = c.Outcome
		case content.Market:
			if err := createMarket(wtx, op, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func createMarket(wtx *store.WriteTx, op content.OutPoint, m content.Market) error {
	shape := make([]uint32, len(m.Decisions))
	for i, decOp := range m.Decisions {
		decOut, ok, err := wtx.GetUTXO(decOp)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: loading decision %d for market", i).WithOutPoint(decOp)
		}
		if !ok {
			return stateerr.New(stateerr.NoUtxo, "connect: market references unknown decision %d", i).WithOutPoint(decOp)
		}
		dec, ok := decOut.Content.(content.Decision)
		if !ok {
			return stateerr.New(stateerr.InvalidOutPoint, "connect: market decision %d is not a Decision", i).WithOutPoint(decOp)
		}
		shape[i] = dec.Size
	}

	rec := content.MarketRecord{B: m.B, Shape: shape, Decisions: m.Decisions, Outcomes: make([]*uint32, len(shape))}
	if err := wtx.PutMarket(op, rec); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: persist market record").WithOutPoint(op)
	}

	zeros := make([]*apd.Decimal, rec.Size())
	for i := range zeros {
		zeros[i] = apd.New(0, 0)
	}
	if err := wtx.PutVector(op, zeros); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: initialize market vector").WithOutPoint(op)
	}
	if err := wtx.PutPositions(op, nil); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: initialize market positions index").WithOutPoint(op)
	}
	return nil
}

func mergeDelta(ctx *apd.Context, bodyDelta map[content.OutPoint][]*apd.Decimal, market content.OutPoint, delta []*apd.Decimal) error {
	acc, ok := bodyDelta[market]
	if !ok {
		bodyDelta[market] = delta
		return nil
	}
	for i := range acc {
		if _, err := ctx.Add(acc[i], acc[i], delta[i]); err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: merge body delta").WithOutPoint(market)
		}
	}
	return nil
}

func applyMarketDeltas(ctx *apd.Context, wtx *store.WriteTx, bodyDelta map[content.OutPoint][]*apd.Decimal) error {
	for market, delta := range bodyDelta {
		state, ok, err := wtx.GetVector(market)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: loading vector for delta application").WithOutPoint(market)
		}
		if !ok {
			return stateerr.New(stateerr.NoUtxo, "connect: vector not found for touched market").WithOutPoint(market)
		}
		for i := range state {
			if _, err := ctx.Add(state[i], state[i], delta[i]); err != nil {
				return stateerr.Wrap(stateerr.Store, err, "connect: apply market delta").WithOutPoint(market)
			}
		}
		if err := wtx.PutVector(market, state); err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: persist updated vector").WithOutPoint(market)
		}
	}
	return nil
}

// resolveMarkets walks every live market, fills in any outcome this
// block's Resolution outputs decided, and reconciles positions for
// markets that become fully resolved. A market referencing no decision
// touched this block is a no-op pass-through.
func resolveMarkets(wtx *store.WriteTx, decisionOutcomes map[content.OutPoint]uint32) error {
	markets, err := wtx.IterateMarkets()
	if err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: list markets")
	}

	for _, marketOp := range markets {
		rec, ok, err := wtx.GetMarket(marketOp)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: reload market").WithOutPoint(marketOp)
		}
		if !ok {
			continue
		}

		changed := false
		for i, decOp := range rec.Decisions {
			if rec.Outcomes[i] != nil {
				continue
			}
			if outcome, ok := decisionOutcomes[decOp]; ok {
				o := outcome
				rec.Outcomes[i] = &o
				changed = true
			}
		}
		if changed {
			if err := wtx.PutMarket(marketOp, rec); err != nil {
				return stateerr.Wrap(stateerr.Store, err, "connect: persist resolved outcomes").WithOutPoint(marketOp)
			}
		}

		if !rec.Resolved() {
			continue
		}
		if err := reconcilePositions(wtx, marketOp, rec.OutcomeTuple()); err != nil {
			return err
		}
	}
	return nil
}

// reconcilePositions rewrites every position matching outcome into a
// plain Value output and deletes every other one, then removes the
// market's own bookkeeping (record, vector, positions index) now that
// it has nothing left to price.
func reconcilePositions(wtx *store.WriteTx, marketOp content.OutPoint, outcome []uint32) error {
	positions, _, err := wtx.GetPositions(marketOp)
	if err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: loading positions for resolution").WithOutPoint(marketOp)
	}

	for _, posOp := range positions {
		out, ok, err := wtx.GetUTXO(posOp)
		if err != nil {
			return stateerr.Wrap(stateerr.Store, err, "connect: loading position for resolution").WithOutPoint(posOp)
		}
		if !ok {
			continue
		}
		pos, ok := out.Content.(content.Position)
		if !ok {
			return stateerr.New(stateerr.InvalidOutPoint, "connect: market_to_positions entry is not a Position").WithOutPoint(posOp)
		}

		if content.ShareEqual(pos.Share, outcome) {
			if err := wtx.PutUTXO(posOp, content.Output{Address: out.Address, Content: content.Value{Amount: pos.Value}}); err != nil {
				return stateerr.Wrap(stateerr.Store, err, "connect: rewrite winning position").WithOutPoint(posOp)
			}
		} else {
			if err := wtx.DeleteUTXO(posOp); err != nil {
				return stateerr.Wrap(stateerr.Store, err, "connect: delete losing position").WithOutPoint(posOp)
			}
		}
	}

	if err := wtx.DeletePositions(marketOp); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: delete positions index").WithOutPoint(marketOp)
	}
	if err := wtx.DeleteVector(marketOp); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: delete market vector").WithOutPoint(marketOp)
	}
	if err := wtx.DeleteMarket(marketOp); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: delete market record").WithOutPoint(marketOp)
	}
	return nil
}

func removePosition(wtx *store.WriteTx, market, posOp content.OutPoint) error {
	list, ok, err := wtx.GetPositions(market)
	if err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: loading positions for removal").WithOutPoint(market)
	}
	if !ok {
		return nil
	}
	out := list[:0]
	for _, op := range list {
		if op != posOp {
			out = append(out, op)
		}
	}
	if err := wtx.PutPositions(market, out); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: persist positions after removal").WithOutPoint(market)
	}
	return nil
}

func appendPosition(wtx *store.WriteTx, market, posOp content.OutPoint) error {
	list, _, err := wtx.GetPositions(market)
	if err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: loading positions for append").WithOutPoint(market)
	}
	list = append(list, posOp)
	if err := wtx.PutPositions(market, list); err != nil {
		return stateerr.Wrap(stateerr.Store, err, "connect: persist positions after append").WithOutPoint(market)
	}
	return nil
}
