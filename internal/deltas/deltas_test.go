package deltas

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/lmsr"
	"github.com/nchashch/hivemind-state/internal/stateerr"
)

type fakeReader struct {
	markets map[content.OutPoint]content.MarketRecord
	utxos   map[content.OutPoint]content.Output
}

func (f *fakeReader) GetMarket(op content.OutPoint) (content.MarketRecord, bool, error) {
	m, ok := f.markets[op]
	return m, ok, nil
}

func (f *fakeReader) GetUTXO(op content.OutPoint) (content.Output, bool, error) {
	o, ok := f.utxos[op]
	return o, ok, nil
}

func TestFlatIndexBijection(t *testing.T) {
	shape := []uint32{2, 3}
	seen := make(map[uint64]bool)
	for a := uint32(0); a < 2; a++ {
		for b := uint32(0); b < 3; b++ {
			idx, err := FlatIndex([]uint32{a, b}, shape)
			require.NoError(t, err)
			require.Less(t, idx, uint64(6))
			require.False(t, seen[idx])
			seen[idx] = true
		}
	}
	require.Len(t, seen, 6)
}

func TestFlatIndexRejectsLengthMismatch(t *testing.T) {
	_, err := FlatIndex([]uint32{0}, []uint32{2, 2})
	require.True(t, stateerr.Is(err, stateerr.InvalidOutPoint))
}

func TestFlatIndexRejectsOutOfRange(t *testing.T) {
	_, err := FlatIndex([]uint32{2}, []uint32{2})
	require.True(t, stateerr.Is(err, stateerr.InvalidOutPoint))
}

func TestAccumulatePositionDeltasAndValues(t *testing.T) {
	market := content.OutPoint{Txid: common.HexToHash("0x01")}
	r := &fakeReader{
		markets: map[content.OutPoint]content.MarketRecord{
			market: {B: 100, Shape: []uint32{2}, Decisions: nil, Outcomes: make([]*uint32, 1)},
		},
		utxos: map[content.OutPoint]content.Output{},
	}

	spentPos := content.OutPoint{Txid: common.HexToHash("0x02")}
	spentOut := content.Output{Content: content.Position{Market: market, Share: []uint32{0}, Value: 1000}}

	ft := content.FilledTransaction{
		SpentUTXOs: []content.Output{spentOut},
		Transaction: content.Transaction{
			Inputs: []content.OutPoint{spentPos},
			Outputs: []content.Output{
				{Content: content.Position{Market: market, Share: []uint32{1}, Value: 2000}},
				{Content: content.Value{Amount: 500}},
			},
		},
	}

	result, err := Accumulate(lmsr.NewContext(), r, ft)
	require.NoError(t, err)
	require.Equal(t, uint64(0), result.InputValue) // the spent Position itself carries no base value
	require.Equal(t, uint64(500), result.OutputValue)

	vec := result.MarketDeltas[market]
	require.Len(t, vec, 2)
	require.Equal(t, 0, vec[0].Cmp(apd.New(-1000, 0)))
	require.Equal(t, 0, vec[1].Cmp(lmsr.DecimalFromUint64(2000)))
}

func TestAccumulateUnknownMarketFailsNoUtxo(t *testing.T) {
	r := &fakeReader{markets: map[content.OutPoint]content.MarketRecord{}, utxos: map[content.OutPoint]content.Output{}}
	ft := content.FilledTransaction{
		Transaction: content.Transaction{
			Outputs: []content.Output{{Content: content.Position{Market: content.OutPoint{Txid: common.HexToHash("0xff")}, Share: []uint32{0}, Value: 1}}},
		},
	}
	_, err := Accumulate(lmsr.NewContext(), r, ft)
	require.True(t, stateerr.Is(err, stateerr.NoUtxo))
}

func TestAccumulateMarketFundingCharge(t *testing.T) {
	decOp := content.OutPoint{Txid: common.HexToHash("0x03")}
	r := &fakeReader{
		markets: map[content.OutPoint]content.MarketRecord{},
		utxos: map[content.OutPoint]content.Output{
			decOp: {Content: content.Decision{Size: 2, ResolvableHeight: 100}},
		},
	}

	ft := content.FilledTransaction{
		Transaction: content.Transaction{
			Outputs: []content.Output{{Content: content.Market{B: 100_000_000, Decisions: []content.OutPoint{decOp}}}},
		},
	}

	result, err := Accumulate(lmsr.NewContext(), r, ft)
	require.NoError(t, err)
	require.Greater(t, result.OutputValue, uint64(0))
}
