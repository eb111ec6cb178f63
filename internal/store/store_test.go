package store

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nchashch/hivemind-state/internal/content"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUTXORoundTrip(t *testing.T) {
	s := openTestStore(t)
	op := content.OutPoint{Txid: common.HexToHash("0x01"), Vout: 3}
	out := content.Output{Address: common.HexToAddress("0xaa"), Content: content.Value{Amount: 500}}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx.PutUTXO(op, out))
	require.NoError(t, wtx.Commit())

	rtx := s.Begin()
	defer rtx.Close()
	got, ok, err := rtx.GetUTXO(op)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, out, got)
}

func TestUTXOMissing(t *testing.T) {
	s := openTestStore(t)
	rtx := s.Begin()
	defer rtx.Close()
	_, ok, err := rtx.GetUTXO(content.OutPoint{Txid: common.HexToHash("0xff")})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUTXODelete(t *testing.T) {
	s := openTestStore(t)
	op := content.OutPoint{Txid: common.HexToHash("0x02")}
	out := content.Output{Content: content.Value{Amount: 1}}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx.PutUTXO(op, out))
	require.NoError(t, wtx.Commit())

	wtx2, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx2.DeleteUTXO(op))
	require.NoError(t, wtx2.Commit())

	rtx := s.Begin()
	defer rtx.Close()
	_, ok, err := rtx.GetUTXO(op)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVectorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	op := content.OutPoint{Txid: common.HexToHash("0x03")}
	vec := []*apd.Decimal{apd.New(10, 0), apd.New(-5, 0), apd.New(0, 0)}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx.PutVector(op, vec))
	require.NoError(t, wtx.Commit())

	rtx := s.Begin()
	defer rtx.Close()
	got, ok, err := rtx.GetVector(op)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 3)
	for i, d := range vec {
		require.Equal(t, 0, d.Cmp(got[i]))
	}
}

func TestMarketRoundTrip(t *testing.T) {
	s := openTestStore(t)
	op := content.OutPoint{Txid: common.HexToHash("0x04")}
	rec := content.MarketRecord{B: 100, Shape: []uint32{2, 2}, Decisions: []content.OutPoint{{Txid: common.HexToHash("0x05")}}, Outcomes: make([]*uint32, 2)}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx.PutMarket(op, rec))
	require.NoError(t, wtx.Commit())

	rtx := s.Begin()
	defer rtx.Close()
	got, ok, err := rtx.GetMarket(op)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.B, got.B)
	require.Equal(t, rec.Shape, got.Shape)
}

func TestPositionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	market := content.OutPoint{Txid: common.HexToHash("0x06")}
	positions := []content.OutPoint{
		{Txid: common.HexToHash("0x07"), Vout: 0},
		{Txid: common.HexToHash("0x08"), Vout: 1},
	}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx.PutPositions(market, positions))
	require.NoError(t, wtx.Commit())

	rtx := s.Begin()
	defer rtx.Close()
	got, ok, err := rtx.GetPositions(market)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, positions, got)
}

func TestWriteTxReadsItsOwnUncommittedWrites(t *testing.T) {
	s := openTestStore(t)
	op := content.OutPoint{Txid: common.HexToHash("0x09")}
	out := content.Output{Content: content.Value{Amount: 77}}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	defer wtx.Close()
	require.NoError(t, wtx.PutUTXO(op, out))

	got, ok, err := wtx.GetUTXO(op)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, out, got)
}

func TestIterateMarkets(t *testing.T) {
	s := openTestStore(t)
	m1 := content.OutPoint{Txid: common.HexToHash("0x0a")}
	m2 := content.OutPoint{Txid: common.HexToHash("0x0b")}
	rec := content.MarketRecord{Shape: []uint32{2}, Outcomes: make([]*uint32, 1)}

	wtx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx.PutMarket(m1, rec))
	require.NoError(t, wtx.PutMarket(m2, rec))
	require.NoError(t, wtx.Commit())

	rtx := s.Begin()
	defer rtx.Close()
	got, err := rtx.IterateMarkets()
	require.NoError(t, err)
	require.Len(t, got, 2)
}
