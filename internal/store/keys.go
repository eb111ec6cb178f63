package store

import (
	"github.com/nchashch/hivemind-state/internal/content"
)

// Four logical tables live in one pebble.DB, distinguished by a
// one-byte prefix ahead of the encoded OutPoint — the same scheme the
// teacher's storage/account_keys.go uses to keep unrelated key spaces
// from colliding inside a single database.
const (
	prefixUTXO      byte = 'u'
	prefixVector    byte = 'v'
	prefixMarket    byte = 'm'
	prefixPositions byte = 'p'
)

func utxoKey(op content.OutPoint) []byte {
	return append([]byte{prefixUTXO}, content.EncodeOutPoint(op)...)
}

func vectorKey(op content.OutPoint) []byte {
	return append([]byte{prefixVector}, content.EncodeOutPoint(op)...)
}

func marketKey(op content.OutPoint) []byte {
	return append([]byte{prefixMarket}, content.EncodeOutPoint(op)...)
}

func positionsKey(op content.OutPoint) []byte {
	return append([]byte{prefixPositions}, content.EncodeOutPoint(op)...)
}
