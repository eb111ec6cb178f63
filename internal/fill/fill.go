// Package fill resolves a transaction's inputs against the UTXO table,
// producing a FilledTransaction that carries both the original
// transaction and the outputs it spends. This is the only place that
// turns an OutPoint into an Output for validation; once a transaction
// is filled, validate never re-reads its inputs from the store.
package fill

import (
	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/stateerr"
)

// Reader is the read surface Transaction needs. Both *store.ReadTx and
// *store.WriteTx satisfy it: validate fills against a read snapshot,
// connect re-fills against the write transaction before it deletes the
// transaction's inputs.
type Reader interface {
	GetUTXO(op content.OutPoint) (content.Output, bool, error)
}

// Transaction loads each input outpoint of tx from the utxo table in
// input order and returns the filled transaction. Fails with NoUtxo on
// the first missing input.
func Transaction(r Reader, tx content.Transaction) (content.FilledTransaction, error) {
	spent := make([]content.Output, len(tx.Inputs))
	for i, op := range tx.Inputs {
		out, ok, err := r.GetUTXO(op)
		if err != nil {
			return content.FilledTransaction{}, stateerr.Wrap(stateerr.Store, err, "fill: reading input %d", i)
		}
		if !ok {
			return content.FilledTransaction{}, stateerr.New(stateerr.NoUtxo, "fill: input %d not found", i).WithOutPoint(op)
		}
		spent[i] = out
	}
	return content.FilledTransaction{SpentUTXOs: spent, Transaction: tx}, nil
}
