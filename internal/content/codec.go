package content

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Encoding is deterministic and length-prefixed, matching the bincode
// convention spec.md §6 mandates for consensus-critical bytes: fixed-
// width little-endian integers, an explicit uint32 length prefix before
// every variable-length sequence, and a one-byte discriminant before a
// tagged union's fields. Unlike the teacher's storage/codec.go (which
// uses encoding/gob for non-consensus consensus-engine blobs), content
// payloads must be bit-compatible across independent implementations,
// so gob — whose wire format is Go-specific and not spec'd — cannot be
// used here.

func putUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func putUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func getUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func getUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func putUint32Slice(w *bytes.Buffer, vs []uint32) {
	putUint32(w, uint32(len(vs)))
	for _, v := range vs {
		putUint32(w, v)
	}
}

func getUint32Slice(r *bytes.Reader) ([]uint32, error) {
	n, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		v, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeOutPoint writes the canonical 37-byte encoding of an OutPoint:
// 1-byte kind, 32-byte txid, 4-byte little-endian vout.
func EncodeOutPoint(o OutPoint) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(o.Kind))
	buf.Write(o.Txid[:])
	putUint32(&buf, o.Vout)
	return buf.Bytes()
}

// DecodeOutPoint is the inverse of EncodeOutPoint.
func DecodeOutPoint(b []byte) (OutPoint, error) {
	if len(b) != 37 {
		return OutPoint{}, fmt.Errorf("content: outpoint must be 37 bytes, got %d", len(b))
	}
	var o OutPoint
	o.Kind = OutPointKind(b[0])
	copy(o.Txid[:], b[1:33])
	o.Vout = binary.LittleEndian.Uint32(b[33:37])
	return o, nil
}

func putOutPoint(w *bytes.Buffer, o OutPoint) {
	w.Write(EncodeOutPoint(o))
}

func getOutPoint(r *bytes.Reader) (OutPoint, error) {
	var b [37]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return OutPoint{}, err
	}
	return DecodeOutPoint(b[:])
}

func putOutPointSlice(w *bytes.Buffer, ops []OutPoint) {
	putUint32(w, uint32(len(ops)))
	for _, op := range ops {
		putOutPoint(w, op)
	}
}

func getOutPointSlice(r *bytes.Reader) ([]OutPoint, error) {
	n, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]OutPoint, n)
	for i := range out {
		op, err := getOutPoint(r)
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}

// EncodeContent writes a tagged union: one discriminant byte followed
// by the variant's fields.
func EncodeContent(c Content) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(c.Tag()))
	switch v := c.(type) {
	case Value:
		putUint64(&buf, v.Amount)
	case Decision:
		buf.Write(v.Query[:])
		putUint32(&buf, v.Size)
		putUint32(&buf, v.ResolvableHeight)
	case Resolution:
		putOutPoint(&buf, v.Decision)
		putUint32(&buf, v.Outcome)
	case Market:
		putUint64(&buf, v.B)
		putOutPointSlice(&buf, v.Decisions)
	case Position:
		putOutPoint(&buf, v.Market)
		putUint32Slice(&buf, v.Share)
		putUint64(&buf, v.Value)
	default:
		panic(fmt.Sprintf("content: unknown content type %T", c))
	}
	return buf.Bytes()
}

// DecodeContent is the inverse of EncodeContent.
func DecodeContent(b []byte) (Content, error) {
	r := bytes.NewReader(b)
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch Tag(tagByte) {
	case TagValue:
		amount, err := getUint64(r)
		if err != nil {
			return nil, err
		}
		return Value{Amount: amount}, nil
	case TagDecision:
		var query common.Hash
		if _, err := io.ReadFull(r, query[:]); err != nil {
			return nil, err
		}
		size, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		height, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		return Decision{Query: query, Size: size, ResolvableHeight: height}, nil
	case TagResolution:
		dec, err := getOutPoint(r)
		if err != nil {
			return nil, err
		}
		outcome, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		return Resolution{Decision: dec, Outcome: outcome}, nil
	case TagMarket:
		b, err := getUint64(r)
		if err != nil {
			return nil, err
		}
		decisions, err := getOutPointSlice(r)
		if err != nil {
			return nil, err
		}
		return Market{B: b, Decisions: decisions}, nil
	case TagPosition:
		market, err := getOutPoint(r)
		if err != nil {
			return nil, err
		}
		share, err := getUint32Slice(r)
		if err != nil {
			return nil, err
		}
		value, err := getUint64(r)
		if err != nil {
			return nil, err
		}
		return Position{Market: market, Share: share, Value: value}, nil
	default:
		return nil, fmt.Errorf("content: unknown tag byte %d", tagByte)
	}
}

// EncodeTransaction serializes a Transaction's inputs and outputs in
// order, for hashing only (never persisted directly).
func EncodeTransaction(tx Transaction) []byte {
	var buf bytes.Buffer
	putOutPointSlice(&buf, tx.Inputs)
	putUint32(&buf, uint32(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		putUint32(&buf, uint32(len(EncodeOutput(o))))
		buf.Write(EncodeOutput(o))
	}
	return buf.Bytes()
}

// TransactionID derives the deterministic txid a transaction's own
// outputs are addressed under: the Keccak256 hash of its canonical
// encoding, the same hashing primitive the teacher's
// pkg/app/core/transaction/verifier.go and pkg/crypto use for every
// other message digest in the codebase.
func TransactionID(tx Transaction) common.Hash {
	return crypto.Keccak256Hash(EncodeTransaction(tx))
}

// EncodeOutput and DecodeOutput serialize an Output: 20-byte address
// followed by its encoded Content.
func EncodeOutput(o Output) []byte {
	var buf bytes.Buffer
	buf.Write(o.Address[:])
	buf.Write(EncodeContent(o.Content))
	return buf.Bytes()
}

func DecodeOutput(b []byte) (Output, error) {
	if len(b) < 20 {
		return Output{}, fmt.Errorf("content: output too short")
	}
	var addr common.Address
	copy(addr[:], b[:20])
	c, err := DecodeContent(b[20:])
	if err != nil {
		return Output{}, err
	}
	return Output{Address: addr, Content: c}, nil
}

// EncodeMarketRecord and DecodeMarketRecord serialize a persisted
// MarketRecord: B, shape, decisions, then a uint32 outcome count and one
// entry per outcome slot (a single 0x00 byte = unresolved; 0x01
// followed by the uint32 outcome index = resolved).
func EncodeMarketRecord(m MarketRecord) []byte {
	var buf bytes.Buffer
	putUint64(&buf, m.B)
	putUint32Slice(&buf, m.Shape)
	putOutPointSlice(&buf, m.Decisions)
	putUint32(&buf, uint32(len(m.Outcomes)))
	for _, o := range m.Outcomes {
		if o == nil {
			buf.WriteByte(0)
			continue
		}
		buf.WriteByte(1)
		putUint32(&buf, *o)
	}
	return buf.Bytes()
}

func DecodeMarketRecord(b []byte) (MarketRecord, error) {
	r := bytes.NewReader(b)
	bVal, err := getUint64(r)
	if err != nil {
		return MarketRecord{}, err
	}
	shape, err := getUint32Slice(r)
	if err != nil {
		return MarketRecord{}, err
	}
	decisions, err := getOutPointSlice(r)
	if err != nil {
		return MarketRecord{}, err
	}
	n, err := getUint32(r)
	if err != nil {
		return MarketRecord{}, err
	}
	outcomes := make([]*uint32, n)
	for i := range outcomes {
		tag, err := r.ReadByte()
		if err != nil {
			return MarketRecord{}, err
		}
		if tag == 0 {
			continue
		}
		v, err := getUint32(r)
		if err != nil {
			return MarketRecord{}, err
		}
		outcomes[i] = &v
	}
	return MarketRecord{B: bVal, Shape: shape, Decisions: decisions, Outcomes: outcomes}, nil
}

// EncodeVector and DecodeVector serialize a market state vector: a
// length-prefixed sequence of decimal strings in the rescaled LMSR
// domain (apd.Decimal round-trips exactly through its canonical string
// form, which keeps the encoding both deterministic and
// implementation-portable, unlike a binary float64 dump).
func EncodeVector(entries []string) []byte {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		putUint32(&buf, uint32(len(e)))
		buf.WriteString(e)
	}
	return buf.Bytes()
}

func DecodeVector(b []byte) ([]string, error) {
	r := bytes.NewReader(b)
	n, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		l, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		s := make([]byte, l)
		if _, err := io.ReadFull(r, s); err != nil {
			return nil, err
		}
		out[i] = string(s)
	}
	return out, nil
}
