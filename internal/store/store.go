// Package store wraps the four OutPoint-keyed tables spec.md §4.3
// requires (utxos, vectors, markets, market_to_positions) over a single
// github.com/cockroachdb/pebble database — the embedded, ACID,
// snapshot-isolated key/value engine spec.md §6 treats as an external
// dependency. Reads go through a ReadTx backed by a pebble.Snapshot
// (the whole validation pass sees one consistent view); writes go
// through a WriteTx backed by an indexed pebble.Batch, committed
// atomically with pebble.Sync — the same pattern the teacher's
// account.Store.NewBatch/BatchWrite.Commit uses for multi-key atomic
// writes, generalized here to span a whole block instead of one
// account update.
package store

import (
	"fmt"
	"io"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/pebble"

	"github.com/nchashch/hivemind-state/internal/content"
)

// Store owns the single pebble database backing all four tables.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if needed) a pebble database at path with
// options tuned the way the teacher's account.NewStore does for a
// write-heavy consensus workload.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(128 << 20),
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		LBaseMaxBytes:         64 << 20,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Begin starts a read transaction: a consistent snapshot of the whole
// database, matching spec.md §4.3's "read transactions (snapshot
// isolation over the whole database)".
func (s *Store) Begin() *ReadTx {
	return &ReadTx{r: s.db.NewSnapshot()}
}

// BeginWrite starts the write transaction connect.Body holds open for
// an entire block. It does not block or fail while another write
// transaction is open: each call returns an independent indexed batch,
// and pebble applies their commits one after another without detecting
// conflicting writes between them.
func (s *Store) BeginWrite() (*WriteTx, error) {
	b := s.db.NewIndexedBatch()
	return &WriteTx{b: b}, nil
}

// getter is the read surface both a pebble.Snapshot and an indexed
// pebble.Batch provide; table helpers are written once against it and
// shared by ReadTx and WriteTx.
type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func getUTXO(g getter, op content.OutPoint) (content.Output, bool, error) {
	val, closer, err := g.Get(utxoKey(op))
	if err == pebble.ErrNotFound {
		return content.Output{}, false, nil
	}
	if err != nil {
		return content.Output{}, false, fmt.Errorf("store: get utxo %s: %w", op, err)
	}
	defer closer.Close()
	out, err := content.DecodeOutput(val)
	if err != nil {
		return content.Output{}, false, fmt.Errorf("store: decode utxo %s: %w", op, err)
	}
	return out, true, nil
}

func getVector(g getter, op content.OutPoint) ([]*apd.Decimal, bool, error) {
	val, closer, err := g.Get(vectorKey(op))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get vector %s: %w", op, err)
	}
	defer closer.Close()
	entries, err := content.DecodeVector(val)
	if err != nil {
		return nil, false, fmt.Errorf("store: decode vector %s: %w", op, err)
	}
	out := make([]*apd.Decimal, len(entries))
	for i, e := range entries {
		d, _, err := apd.NewFromString(e)
		if err != nil {
			return nil, false, fmt.Errorf("store: parse vector entry %d of %s: %w", i, op, err)
		}
		out[i] = d
	}
	return out, true, nil
}

func getMarket(g getter, op content.OutPoint) (content.MarketRecord, bool, error) {
	val, closer, err := g.Get(marketKey(op))
	if err == pebble.ErrNotFound {
		return content.MarketRecord{}, false, nil
	}
	if err != nil {
		return content.MarketRecord{}, false, fmt.Errorf("store: get market %s: %w", op, err)
	}
	defer closer.Close()
	m, err := content.DecodeMarketRecord(val)
	if err != nil {
		return content.MarketRecord{}, false, fmt.Errorf("store: decode market %s: %w", op, err)
	}
	return m, true, nil
}

func getPositions(g getter, op content.OutPoint) ([]content.OutPoint, bool, error) {
	val, closer, err := g.Get(positionsKey(op))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get positions %s: %w", op, err)
	}
	defer closer.Close()
	list, err := decodeOutPointList(val)
	if err != nil {
		return nil, false, fmt.Errorf("store: decode positions %s: %w", op, err)
	}
	return list, true, nil
}

// iterable is the subset of pebble.Snapshot/pebble.Batch's read API
// IterateMarkets needs; the connector's resolution pass (spec.md §4.7
// step 3) is the only caller that needs to enumerate a whole table
// rather than look up a single key.
type iterable interface {
	NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error)
}

func iterateMarkets(it iterable) ([]content.OutPoint, error) {
	lower := []byte{prefixMarket}
	upper := []byte{prefixMarket + 1}
	iter, err := it.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("store: iterate markets: %w", err)
	}
	defer iter.Close()

	var ops []content.OutPoint
	for iter.First(); iter.Valid(); iter.Next() {
		op, err := content.DecodeOutPoint(iter.Key()[1:])
		if err != nil {
			return nil, fmt.Errorf("store: decode market key: %w", err)
		}
		ops = append(ops, op)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate markets: %w", err)
	}
	return ops, nil
}

// ReadTx is a snapshot read transaction over all four tables.
type ReadTx struct {
	r *pebble.Snapshot
}

func (t *ReadTx) Close() error { return t.r.Close() }

func (t *ReadTx) GetUTXO(op content.OutPoint) (content.Output, bool, error) {
	return getUTXO(t.r, op)
}

func (t *ReadTx) GetVector(op content.OutPoint) ([]*apd.Decimal, bool, error) {
	return getVector(t.r, op)
}

func (t *ReadTx) GetMarket(op content.OutPoint) (content.MarketRecord, bool, error) {
	return getMarket(t.r, op)
}

func (t *ReadTx) GetPositions(op content.OutPoint) ([]content.OutPoint, bool, error) {
	return getPositions(t.r, op)
}

// IterateMarkets lists every live market outpoint currently persisted.
func (t *ReadTx) IterateMarkets() ([]content.OutPoint, error) {
	return iterateMarkets(t.r)
}

// WriteTx is the single write transaction spanning a whole block
// apply. It can both read (including its own uncommitted writes, via
// the indexed batch) and mutate all four tables.
type WriteTx struct {
	b *pebble.Batch
}

func (t *WriteTx) GetUTXO(op content.OutPoint) (content.Output, bool, error) {
	return getUTXO(t.b, op)
}

func (t *WriteTx) GetVector(op content.OutPoint) ([]*apd.Decimal, bool, error) {
	return getVector(t.b, op)
}

func (t *WriteTx) GetMarket(op content.OutPoint) (content.MarketRecord, bool, error) {
	return getMarket(t.b, op)
}

func (t *WriteTx) GetPositions(op content.OutPoint) ([]content.OutPoint, bool, error) {
	return getPositions(t.b, op)
}

// IterateMarkets lists every live market outpoint currently persisted,
// including ones this same write transaction has already put.
func (t *WriteTx) IterateMarkets() ([]content.OutPoint, error) {
	return iterateMarkets(t.b)
}

func (t *WriteTx) PutUTXO(op content.OutPoint, out content.Output) error {
	return t.b.Set(utxoKey(op), content.EncodeOutput(out), nil)
}

func (t *WriteTx) DeleteUTXO(op content.OutPoint) error {
	return t.b.Delete(utxoKey(op), nil)
}

func (t *WriteTx) PutVector(op content.OutPoint, vec []*apd.Decimal) error {
	entries := make([]string, len(vec))
	for i, d := range vec {
		entries[i] = d.String()
	}
	return t.b.Set(vectorKey(op), content.EncodeVector(entries), nil)
}

func (t *WriteTx) DeleteVector(op content.OutPoint) error {
	return t.b.Delete(vectorKey(op), nil)
}

func (t *WriteTx) PutMarket(op content.OutPoint, m content.MarketRecord) error {
	return t.b.Set(marketKey(op), content.EncodeMarketRecord(m), nil)
}

func (t *WriteTx) DeleteMarket(op content.OutPoint) error {
	return t.b.Delete(marketKey(op), nil)
}

func (t *WriteTx) PutPositions(op content.OutPoint, list []content.OutPoint) error {
	return t.b.Set(positionsKey(op), encodeOutPointList(list), nil)
}

func (t *WriteTx) DeletePositions(op content.OutPoint) error {
	return t.b.Delete(positionsKey(op), nil)
}

// Commit atomically writes every staged mutation; either all of it is
// durable or, on error, none of it is.
func (t *WriteTx) Commit() error {
	return t.b.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (t *WriteTx) Close() error { return t.b.Close() }
