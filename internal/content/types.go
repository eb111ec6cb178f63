// Package content defines the tagged-union UTXO payloads the state
// engine understands (Value, Decision, Resolution, Market, Position),
// the OutPoint/Output wire types they attach to, and the derived Market
// record persisted alongside a live combinatorial market.
package content

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OutPointKind distinguishes a regular transaction output from a
// coinbase output. Coinbase outpoints are produced by the external
// block-production collaborator; the engine treats their shape
// opaquely and never constructs one itself.
type OutPointKind uint8

const (
	OutPointRegular OutPointKind = iota
	OutPointCoinbase
)

// OutPoint is a stable reference to a specific output of a specific
// transaction. It is equality-hashable (safe as a Go map key, since
// common.Hash is a fixed-size array) and totally ordered via Compare.
type OutPoint struct {
	Kind OutPointKind
	Txid common.Hash
	Vout uint32
}

func (o OutPoint) String() string {
	kind := "regular"
	if o.Kind == OutPointCoinbase {
		kind = "coinbase"
	}
	return fmt.Sprintf("%s:%s:%d", kind, o.Txid.Hex(), o.Vout)
}

// Compare imposes a total order: by kind, then txid, then vout.
func (o OutPoint) Compare(other OutPoint) int {
	if o.Kind != other.Kind {
		if o.Kind < other.Kind {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(o.Txid[:], other.Txid[:]); c != 0 {
		return c
	}
	switch {
	case o.Vout < other.Vout:
		return -1
	case o.Vout > other.Vout:
		return 1
	default:
		return 0
	}
}

// Tag is the discriminant of the Content tagged union.
type Tag uint8

const (
	TagValue Tag = iota
	TagDecision
	TagResolution
	TagMarket
	TagPosition
)

func (t Tag) String() string {
	switch t {
	case TagValue:
		return "Value"
	case TagDecision:
		return "Decision"
	case TagResolution:
		return "Resolution"
	case TagMarket:
		return "Market"
	case TagPosition:
		return "Position"
	default:
		return "Unknown"
	}
}

// Content is the tagged union of everything an Output can carry.
// GetValue returns the output's contribution to a transaction's money
// sums: nonzero only for Value, per spec.
type Content interface {
	Tag() Tag
	GetValue() uint64
}

// Value is ordinary money.
type Value struct {
	Amount uint64
}

func (Value) Tag() Tag             { return TagValue }
func (v Value) GetValue() uint64   { return v.Amount }

// Decision is a future fact with Size possible outcomes, resolvable no
// earlier than ResolvableHeight. Query identifies the real-world
// question the decision answers; the engine never inspects it.
type Decision struct {
	Query            common.Hash
	Size             uint32
	ResolvableHeight uint32
}

func (Decision) Tag() Tag           { return TagDecision }
func (Decision) GetValue() uint64   { return 0 }

// Resolution declares the outcome of a specific Decision.
type Resolution struct {
	Decision OutPoint
	Outcome  uint32
}

func (Resolution) Tag() Tag         { return TagResolution }
func (Resolution) GetValue() uint64 { return 0 }

// Market is a combinatorial market over the Cartesian product of the
// referenced decisions' outcomes, with liquidity parameter B.
type Market struct {
	B         uint64
	Decisions []OutPoint
}

func (Market) Tag() Tag           { return TagMarket }
func (Market) GetValue() uint64   { return 0 }

// Position is a holding of Value shares of outcome coordinate Share in
// Market. len(Share) equals the number of decisions in the market.
type Position struct {
	Market OutPoint
	Share  []uint32
	Value  uint64
}

func (Position) Tag() Tag         { return TagPosition }
func (Position) GetValue() uint64 { return 0 }

// Output is a record with an opaque address and tagged content. Only
// Content.GetValue contributes to money sums; Address plays no role in
// validation, it is carried through for the external wallet layer.
type Output struct {
	Address common.Address
	Content Content
}

func (o Output) GetValue() uint64 { return o.Content.GetValue() }

// Transaction is an unvalidated, unfilled set of inputs and outputs.
type Transaction struct {
	Inputs  []OutPoint
	Outputs []Output
}

// FilledTransaction carries a Transaction alongside the outputs its
// inputs resolved to, in input order. It is produced by
// fill.Transaction; code that takes one reads spent outputs from it
// rather than from the store.
type FilledTransaction struct {
	SpentUTXOs  []Output
	Transaction Transaction
}

// Body is a block's transaction payload: one or more coinbase outputs
// (subsidy plus fee claim) and the ordinary transactions it contains,
// in application order.
type Body struct {
	Coinbase     []Output
	Transactions []Transaction
}

// MarketRecord is the persisted state alongside a live Market outpoint:
// its liquidity parameter, the per-axis outcome-space shape, the
// decisions it was created over, and each decision's outcome once
// resolved (nil until then).
type MarketRecord struct {
	B         uint64
	Shape     []uint32
	Decisions []OutPoint
	Outcomes  []*uint32
}

// Size returns the flattened vector length: the product of Shape.
func (m *MarketRecord) Size() uint64 {
	size := uint64(1)
	for _, s := range m.Shape {
		size *= uint64(s)
	}
	return size
}

// Resolved reports whether every decision in the market has an outcome.
func (m *MarketRecord) Resolved() bool {
	for _, o := range m.Outcomes {
		if o == nil {
			return false
		}
	}
	return true
}

// OutcomeTuple returns the finalized outcome coordinate once Resolved,
// or nil if any decision is still pending.
func (m *MarketRecord) OutcomeTuple() []uint32 {
	tuple := make([]uint32, len(m.Outcomes))
	for i, o := range m.Outcomes {
		if o == nil {
			return nil
		}
		tuple[i] = *o
	}
	return tuple
}

// ShareEqual reports whether a position's share coordinate matches a
// resolved market's outcome tuple.
func ShareEqual(share, outcome []uint32) bool {
	if len(share) != len(outcome) {
		return false
	}
	for i := range share {
		if share[i] != outcome[i] {
			return false
		}
	}
	return true
}
