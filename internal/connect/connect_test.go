package connect

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/lmsr"
	"github.com/nchashch/hivemind-state/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCommit(t *testing.T, s *store.Store, fn func(*store.WriteTx) error) {
	t.Helper()
	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, fn(wtx))
	require.NoError(t, wtx.Commit())
}

func TestBodyCreatesMarketWithZeroVectorAndEmptyPositions(t *testing.T) {
	s := openTestStore(t)
	ctx := lmsr.NewContext()
	sugar := zap.NewNop().Sugar()

	decOp := content.OutPoint{Txid: common.HexToHash("0x01")}
	mustCommit(t, s, func(wtx *store.WriteTx) error {
		return wtx.PutUTXO(decOp, content.Output{Content: content.Decision{Size: 2, ResolvableHeight: 1000}})
	})

	tx := content.Transaction{
		Outputs: []content.Output{{Content: content.Market{B: 100_000_000, Decisions: []content.OutPoint{decOp}}}},
	}
	marketOp := content.OutPoint{Txid: content.TransactionID(tx), Vout: 0}

	require.NoError(t, Body(s, ctx, sugar, content.Body{Transactions: []content.Transaction{tx}}))

	rtx := s.Begin()
	defer rtx.Close()
	rec, ok, err := rtx.GetMarket(marketOp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uint32{2}, rec.Shape)

	vec, ok, err := rtx.GetVector(marketOp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, vec, 2)
	require.Equal(t, 0, vec[0].Sign())
	require.Equal(t, 0, vec[1].Sign())

	positions, ok, err := rtx.GetPositions(marketOp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, positions)
}

func TestBodyAppliesPositionDeltaToVector(t *testing.T) {
	s := openTestStore(t)
	ctx := lmsr.NewContext()
	sugar := zap.NewNop().Sugar()

	decOp := content.OutPoint{Txid: common.HexToHash("0x02")}
	mustCommit(t, s, func(wtx *store.WriteTx) error {
		return wtx.PutUTXO(decOp, content.Output{Content: content.Decision{Size: 2, ResolvableHeight: 1000}})
	})

	marketTx := content.Transaction{
		Outputs: []content.Output{{Content: content.Market{B: 100_000_000, Decisions: []content.OutPoint{decOp}}}},
	}
	marketOp := content.OutPoint{Txid: content.TransactionID(marketTx), Vout: 0}

	positionTx := content.Transaction{
		Outputs: []content.Output{{Content: content.Position{Market: marketOp, Share: []uint32{0}, Value: 1000}}},
	}

	require.NoError(t, Body(s, ctx, sugar, content.Body{Transactions: []content.Transaction{marketTx, positionTx}}))

	rtx := s.Begin()
	defer rtx.Close()
	vec, ok, err := rtx.GetVector(marketOp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, vec[0].Cmp(lmsr.DecimalFromUint64(1000)))
	require.Equal(t, 0, vec[1].Sign())
}

func TestBodyResolvesMarketPaysWinnersDeletesLosers(t *testing.T) {
	s := openTestStore(t)
	ctx := lmsr.NewContext()
	sugar := zap.NewNop().Sugar()

	decOp := content.OutPoint{Txid: common.HexToHash("0x03")}
	mustCommit(t, s, func(wtx *store.WriteTx) error {
		return wtx.PutUTXO(decOp, content.Output{Content: content.Decision{Size: 2, ResolvableHeight: 0}})
	})

	marketTx := content.Transaction{
		Outputs: []content.Output{{Content: content.Market{B: 100_000_000, Decisions: []content.OutPoint{decOp}}}},
	}
	marketOp := content.OutPoint{Txid: content.TransactionID(marketTx), Vout: 0}

	winTx := content.Transaction{
		Outputs: []content.Output{{Address: common.HexToAddress("0xaa"), Content: content.Position{Market: marketOp, Share: []uint32{0}, Value: 1000}}},
	}
	winOp := content.OutPoint{Txid: content.TransactionID(winTx), Vout: 0}

	loseTx := content.Transaction{
		Outputs: []content.Output{{Address: common.HexToAddress("0xbb"), Content: content.Position{Market: marketOp, Share: []uint32{1}, Value: 2000}}},
	}
	loseOp := content.OutPoint{Txid: content.TransactionID(loseTx), Vout: 0}

	require.NoError(t, Body(s, ctx, sugar, content.Body{Transactions: []content.Transaction{marketTx, winTx, loseTx}}))

	resolveTx := content.Transaction{
		Inputs:  []content.OutPoint{decOp},
		Outputs: []content.Output{{Content: content.Resolution{Decision: decOp, Outcome: 0}}},
	}
	require.NoError(t, Body(s, ctx, sugar, content.Body{Transactions: []content.Transaction{resolveTx}}))

	rtx := s.Begin()
	defer rtx.Close()

	winOut, ok, err := rtx.GetUTXO(winOp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content.Value{Amount: 1000}, winOut.Content)
	require.Equal(t, common.HexToAddress("0xaa"), winOut.Address)

	_, ok, err = rtx.GetUTXO(loseOp)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = rtx.GetMarket(marketOp)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = rtx.GetVector(marketOp)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = rtx.GetPositions(marketOp)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBodySpendingPositionRemovesItFromIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := lmsr.NewContext()
	sugar := zap.NewNop().Sugar()

	decOp := content.OutPoint{Txid: common.HexToHash("0x04")}
	mustCommit(t, s, func(wtx *store.WriteTx) error {
		return wtx.PutUTXO(decOp, content.Output{Content: content.Decision{Size: 2, ResolvableHeight: 1000}})
	})

	marketTx := content.Transaction{
		Outputs: []content.Output{{Content: content.Market{B: 100_000_000, Decisions: []content.OutPoint{decOp}}}},
	}
	marketOp := content.OutPoint{Txid: content.TransactionID(marketTx), Vout: 0}

	pos0Tx := content.Transaction{Outputs: []content.Output{{Content: content.Position{Market: marketOp, Share: []uint32{0}, Value: 1000}}}}
	pos0Op := content.OutPoint{Txid: content.TransactionID(pos0Tx), Vout: 0}
	pos1Tx := content.Transaction{Outputs: []content.Output{{Content: content.Position{Market: marketOp, Share: []uint32{1}, Value: 2000}}}}
	pos1Op := content.OutPoint{Txid: content.TransactionID(pos1Tx), Vout: 0}

	require.NoError(t, Body(s, ctx, sugar, content.Body{Transactions: []content.Transaction{marketTx, pos0Tx, pos1Tx}}))

	sellTx := content.Transaction{Inputs: []content.OutPoint{pos0Op}}
	require.NoError(t, Body(s, ctx, sugar, content.Body{Transactions: []content.Transaction{sellTx}}))

	rtx := s.Begin()
	defer rtx.Close()
	positions, ok, err := rtx.GetPositions(marketOp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []content.OutPoint{pos1Op}, positions)

	_, ok, err = rtx.GetUTXO(pos0Op)
	require.NoError(t, err)
	require.False(t, ok)
}
