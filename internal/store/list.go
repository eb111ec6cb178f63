package store

import (
	"encoding/binary"
	"fmt"

	"github.com/nchashch/hivemind-state/internal/content"
)

// encodeOutPointList and decodeOutPointList serialize the
// market_to_positions index value: a uint32 count followed by each
// outpoint's fixed 37-byte encoding.
func encodeOutPointList(list []content.OutPoint) []byte {
	buf := make([]byte, 4, 4+37*len(list))
	binary.LittleEndian.PutUint32(buf, uint32(len(list)))
	for _, op := range list {
		buf = append(buf, content.EncodeOutPoint(op)...)
	}
	return buf
}

func decodeOutPointList(b []byte) ([]content.OutPoint, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("store: outpoint list too short")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	out := make([]content.OutPoint, n)
	for i := range out {
		if len(b) < 37 {
			return nil, fmt.Errorf("store: outpoint list truncated")
		}
		op, err := content.DecodeOutPoint(b[:37])
		if err != nil {
			return nil, err
		}
		out[i] = op
		b = b[37:]
	}
	return out, nil
}
